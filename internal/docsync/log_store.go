package docsync

import (
	"context"

	"go.uber.org/zap"
)

const (
	opAppendUpdate = "docsync.append_update"
	opListUpdates  = "docsync.list_updates"
	opPruneUpdates = "docsync.prune_updates"

	orderCreatedAtAsc = "created_at_ms ASC, update_id ASC"
)

// AppendResult captures the persisted identity of a stored update.
type AppendResult struct {
	UpdateID    int64
	CreatedAtMs int64
}

// StoredUpdate is one replayable log entry served back to clients.
type StoredUpdate struct {
	UpdateID    int64
	UserID      string
	Payload     []byte
	CreatedAtMs int64
}

// AppendUpdate stores one canonical delta after a write check. Appends are
// never rejected for conflict; the access gate is the only gate.
func (s *Service) AppendUpdate(ctx context.Context, documentID DocumentID, userID UserID, payload []byte) (AppendResult, error) {
	return s.appendForAction(ctx, documentID, userID, payload, ActionWrite)
}

// AppendCommentUpdate stores a delta authored through a comment-thread
// operation, which requires only commenter level.
func (s *Service) AppendCommentUpdate(ctx context.Context, documentID DocumentID, userID UserID, payload []byte) (AppendResult, error) {
	return s.appendForAction(ctx, documentID, userID, payload, ActionComment)
}

func (s *Service) appendForAction(ctx context.Context, documentID DocumentID, userID UserID, payload []byte, action AccessAction) (AppendResult, error) {
	if _, err := s.Authorize(ctx, documentID, userID, action); err != nil {
		return AppendResult{}, err
	}
	if len(payload) == 0 {
		s.logError(opAppendUpdate, "empty_payload", ErrMalformedPayload,
			zap.String(fieldDocumentID, documentID.String()),
			zap.String(fieldUserID, userID.String()))
		return AppendResult{}, ErrMalformedPayload
	}

	record := UpdateRecord{
		DocumentID:  documentID.String(),
		UserID:      userID.String(),
		Payload:     payload,
		CreatedAtMs: s.nextTimestamp(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opAppendUpdate, reasonInsertFailed, err,
			zap.String(fieldDocumentID, documentID.String()),
			zap.String(fieldUserID, userID.String()))
		return AppendResult{}, newServiceError(opAppendUpdate, reasonInsertFailed, err)
	}
	return AppendResult{UpdateID: record.UpdateID, CreatedAtMs: record.CreatedAtMs}, nil
}

// ListUpdates returns non-pruned updates in creation order after a read
// check. A non-nil afterMs bounds the result to updates created strictly
// after the watermark.
func (s *Service) ListUpdates(ctx context.Context, documentID DocumentID, userID UserID, afterMs *int64) ([]StoredUpdate, error) {
	if _, err := s.Authorize(ctx, documentID, userID, ActionRead); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Order(orderCreatedAtAsc)
	if afterMs != nil {
		query = query.Where("created_at_ms > ?", *afterMs)
	}

	var records []UpdateRecord
	if err := query.Find(&records).Error; err != nil {
		s.logError(opListUpdates, reasonQueryFailed, err,
			zap.String(fieldDocumentID, documentID.String()),
			zap.String(fieldUserID, userID.String()))
		return nil, newServiceError(opListUpdates, reasonQueryFailed, err)
	}

	updates := make([]StoredUpdate, 0, len(records))
	for _, record := range records {
		updates = append(updates, StoredUpdate{
			UpdateID:    record.UpdateID,
			UserID:      record.UserID,
			Payload:     record.Payload,
			CreatedAtMs: record.CreatedAtMs,
		})
	}
	return updates, nil
}

// PruneUpdates deletes records created strictly before the watermark, or
// all records when the watermark is nil. Pruning is a lossy optimization;
// the caller is responsible for choosing a watermark every live client has
// already incorporated.
func (s *Service) PruneUpdates(ctx context.Context, documentID DocumentID, userID UserID, olderThanMs *int64) (int64, error) {
	if _, err := s.Authorize(ctx, documentID, userID, ActionWrite); err != nil {
		return 0, err
	}

	query := s.db.WithContext(ctx).Where("document_id = ?", documentID.String())
	if olderThanMs != nil {
		query = query.Where("created_at_ms < ?", *olderThanMs)
	}

	result := query.Delete(&UpdateRecord{})
	if result.Error != nil {
		s.logError(opPruneUpdates, "delete_failed", result.Error,
			zap.String(fieldDocumentID, documentID.String()),
			zap.String(fieldUserID, userID.String()))
		return 0, newServiceError(opPruneUpdates, "delete_failed", result.Error)
	}
	return result.RowsAffected, nil
}

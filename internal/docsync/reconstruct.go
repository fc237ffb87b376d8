package docsync

import (
	"context"

	"github.com/inkstreamlabs/inkstream/backend/internal/crdt"
	"go.uber.org/zap"
)

const (
	opReconstruct         = "docsync.reconstruct"
	opMaterializeSnapshot = "docsync.materialize_snapshot"

	reconstructorNodeID = "inkstream-server"
)

// Reconstruct replays the full update history, in creation order, into a
// fresh replicated document. The result does not depend on replay order;
// creation order is a convenience for deterministic snapshotting.
func (s *Service) Reconstruct(ctx context.Context, documentID DocumentID, userID UserID) (*crdt.LWWDocument, error) {
	updates, err := s.ListUpdates(ctx, documentID, userID, nil)
	if err != nil {
		return nil, err
	}

	document := crdt.NewLWWDocument(reconstructorNodeID)
	for _, update := range updates {
		if err := document.ApplyUpdate(update.Payload); err != nil {
			s.logError(opReconstruct, "apply_failed", err,
				zap.String(fieldDocumentID, documentID.String()),
				zap.Int64("update_id", update.UpdateID))
			return nil, newServiceError(opReconstruct, "apply_failed", err)
		}
	}
	return document, nil
}

// MaterializeSnapshot replays the log and stores the resulting state in the
// document's advisory content column. The update log remains the source of
// truth; the column only serves cheap metadata reads.
func (s *Service) MaterializeSnapshot(ctx context.Context, documentID DocumentID, userID UserID) (Document, error) {
	replicated, err := s.Reconstruct(ctx, documentID, userID)
	if err != nil {
		return Document{}, err
	}

	snapshot := replicated.Snapshot()
	updates := map[string]any{
		"content":       string(snapshot),
		"updated_at_ms": s.clock().UTC().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("document_id = ?", documentID.String()).
		Updates(updates).Error; err != nil {
		s.logError(opMaterializeSnapshot, "update_failed", err,
			zap.String(fieldDocumentID, documentID.String()))
		return Document{}, newServiceError(opMaterializeSnapshot, "update_failed", err)
	}

	var document Document
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Take(&document).Error; err != nil {
		s.logError(opMaterializeSnapshot, reasonQueryFailed, err,
			zap.String(fieldDocumentID, documentID.String()))
		return Document{}, newServiceError(opMaterializeSnapshot, reasonQueryFailed, err)
	}
	return document, nil
}

package docsync

import (
	"context"

	"go.uber.org/zap"
)

const (
	opCreateDocument  = "docsync.create_document"
	opGetDocument     = "docsync.get_document"
	opGrantPermission = "docsync.grant_permission"

	reasonIDGenerationFailed = "id_generation_failed"
	reasonInsertFailed       = "insert_failed"
	reasonQueryFailed        = "query_failed"
	reasonUpsertFailed       = "upsert_failed"
)

// CreateDocument persists a new document owned by the caller. Ownership is
// implicit: no permission row is written for the creator.
func (s *Service) CreateDocument(ctx context.Context, ownerID UserID) (Document, error) {
	if s.db == nil {
		s.logError(opCreateDocument, "missing_database", errMissingDatabase)
		return Document{}, newServiceError(opCreateDocument, "missing_database", errMissingDatabase)
	}

	documentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateDocument, reasonIDGenerationFailed, err, zap.String(fieldUserID, ownerID.String()))
		return Document{}, newServiceError(opCreateDocument, reasonIDGenerationFailed, err)
	}

	document := Document{
		DocumentID:  documentID,
		OwnerID:     ownerID.String(),
		UpdatedAtMs: s.clock().UTC().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&document).Error; err != nil {
		s.logError(opCreateDocument, reasonInsertFailed, err,
			zap.String(fieldDocumentID, documentID),
			zap.String(fieldUserID, ownerID.String()))
		return Document{}, newServiceError(opCreateDocument, reasonInsertFailed, err)
	}
	return document, nil
}

// GetDocument returns document metadata after a read check.
func (s *Service) GetDocument(ctx context.Context, documentID DocumentID, userID UserID) (Document, error) {
	if _, err := s.Authorize(ctx, documentID, userID, ActionRead); err != nil {
		return Document{}, err
	}

	var document Document
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Take(&document).Error; err != nil {
		s.logError(opGetDocument, reasonQueryFailed, err, zap.String(fieldDocumentID, documentID.String()))
		return Document{}, newServiceError(opGetDocument, reasonQueryFailed, err)
	}
	return document, nil
}

// GrantPermission writes or replaces an explicit permission row. Only an
// owner-level caller may grant.
func (s *Service) GrantPermission(ctx context.Context, documentID DocumentID, granterID UserID, granteeID UserID, level PermissionLevel) (Permission, error) {
	if _, err := s.Authorize(ctx, documentID, granterID, ActionManage); err != nil {
		return Permission{}, err
	}

	permission := Permission{
		DocumentID:  documentID.String(),
		UserID:      granteeID.String(),
		Level:       level.String(),
		GrantedBy:   granterID.String(),
		CreatedAtMs: s.clock().UTC().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Save(&permission).Error; err != nil {
		s.logError(opGrantPermission, reasonUpsertFailed, err,
			zap.String(fieldDocumentID, documentID.String()),
			zap.String(fieldUserID, granteeID.String()))
		return Permission{}, newServiceError(opGrantPermission, reasonUpsertFailed, err)
	}
	return permission, nil
}

package docsync

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNoAccess is returned when the caller holds no permission on the
	// document or the document does not exist. The two cases are deliberately
	// indistinguishable so that a denied caller cannot probe for existence.
	ErrNoAccess = errors.New("docsync: document not found or no access")
	// ErrForbidden is returned when the caller holds a level on the document
	// that does not cover the requested action.
	ErrForbidden = errors.New("docsync: permission level does not allow action")
)

const (
	opAuthorize = "docsync.authorize"

	reasonPermissionLookupFailed = "permission_lookup_failed"
	reasonOwnerLookupFailed      = "owner_lookup_failed"
	reasonLevelInvalid           = "permission_level_invalid"
)

// AccessAction enumerates the operations the gate decides on.
type AccessAction int

const (
	// ActionRead covers listing updates and reading reconstructed state.
	ActionRead AccessAction = iota
	// ActionComment covers creating comment threads and replies.
	ActionComment
	// ActionWrite covers appending and pruning document updates.
	ActionWrite
	// ActionManage covers granting permissions.
	ActionManage
)

// String returns the action's log representation.
func (action AccessAction) String() string {
	switch action {
	case ActionRead:
		return "read"
	case ActionComment:
		return "comment"
	case ActionWrite:
		return "write"
	case ActionManage:
		return "manage"
	default:
		return "unknown"
	}
}

func (action AccessAction) allowedFor(level PermissionLevel) bool {
	switch action {
	case ActionRead:
		return level.CanRead()
	case ActionComment:
		return level.CanComment()
	case ActionWrite:
		return level.CanWrite()
	case ActionManage:
		return level.CanManage()
	default:
		return false
	}
}

// ResolutionKind tags how an effective permission level was derived.
type ResolutionKind int

const (
	// ResolutionNone means neither an explicit row nor ownership applied.
	ResolutionNone ResolutionKind = iota
	// ResolutionExplicit means an explicit permission row supplied the level.
	ResolutionExplicit
	// ResolutionImpliedOwner means the caller is the document's creator.
	ResolutionImpliedOwner
)

// PermissionResolution captures the outcome of the two-step permission
// lookup: explicit row first, creator fallback second.
type PermissionResolution struct {
	Kind  ResolutionKind
	Level PermissionLevel
}

// AccessDecision is a granted authorization with its effective level.
type AccessDecision struct {
	EffectiveLevel PermissionLevel
	Resolution     PermissionResolution
}

// ResolveAccess performs the permission lookup without deciding an action.
// A lookup error is surfaced as a service error, never as a denial.
func (s *Service) ResolveAccess(ctx context.Context, documentID DocumentID, userID UserID) (PermissionResolution, error) {
	if s.db == nil {
		s.logError(opAuthorize, "missing_database", errMissingDatabase)
		return PermissionResolution{}, newServiceError(opAuthorize, "missing_database", errMissingDatabase)
	}

	var row Permission
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", documentID.String(), userID.String()).
		Take(&row).Error
	if err == nil {
		level, levelErr := ParsePermissionLevel(row.Level)
		if levelErr != nil {
			s.logError(opAuthorize, reasonLevelInvalid, levelErr,
				zap.String(fieldDocumentID, documentID.String()),
				zap.String(fieldUserID, userID.String()))
			return PermissionResolution{}, newServiceError(opAuthorize, reasonLevelInvalid, levelErr)
		}
		return PermissionResolution{Kind: ResolutionExplicit, Level: level}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opAuthorize, reasonPermissionLookupFailed, err,
			zap.String(fieldDocumentID, documentID.String()),
			zap.String(fieldUserID, userID.String()))
		return PermissionResolution{}, newServiceError(opAuthorize, reasonPermissionLookupFailed, err)
	}

	var document Document
	err = s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PermissionResolution{Kind: ResolutionNone}, nil
	}
	if err != nil {
		s.logError(opAuthorize, reasonOwnerLookupFailed, err,
			zap.String(fieldDocumentID, documentID.String()),
			zap.String(fieldUserID, userID.String()))
		return PermissionResolution{}, newServiceError(opAuthorize, reasonOwnerLookupFailed, err)
	}
	if document.OwnerID == userID.String() {
		return PermissionResolution{Kind: ResolutionImpliedOwner, Level: PermissionLevelOwner}, nil
	}
	return PermissionResolution{Kind: ResolutionNone}, nil
}

// Authorize resolves the caller's effective level and decides the action.
// Denial returns ErrNoAccess regardless of whether the document exists.
func (s *Service) Authorize(ctx context.Context, documentID DocumentID, userID UserID, action AccessAction) (AccessDecision, error) {
	resolution, err := s.ResolveAccess(ctx, documentID, userID)
	if err != nil {
		return AccessDecision{}, err
	}
	if resolution.Kind == ResolutionNone {
		return AccessDecision{}, ErrNoAccess
	}
	if !action.allowedFor(resolution.Level) {
		return AccessDecision{}, ErrForbidden
	}
	return AccessDecision{EffectiveLevel: resolution.Level, Resolution: resolution}, nil
}

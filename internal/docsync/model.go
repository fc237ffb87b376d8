package docsync

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidDocumentID indicates that a document identifier is empty or exceeds storage bounds.
	ErrInvalidDocumentID = errors.New("docsync: invalid document id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("docsync: invalid user id")
	// ErrInvalidPermissionLevel indicates an unknown permission level value.
	ErrInvalidPermissionLevel = errors.New("docsync: invalid permission level")
)

// DocumentID represents a validated document identifier.
type DocumentID string

// NewDocumentID validates raw input and returns a DocumentID.
func NewDocumentID(rawInput string) (DocumentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDocumentID, maxIdentifierLength)
	}
	return DocumentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DocumentID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// PermissionLevel enumerates document access tiers.
type PermissionLevel string

const (
	// PermissionLevelViewer grants read-only access.
	PermissionLevelViewer PermissionLevel = "viewer"
	// PermissionLevelCommenter grants read access plus thread creation.
	PermissionLevelCommenter PermissionLevel = "commenter"
	// PermissionLevelEditor grants read and write access.
	PermissionLevelEditor PermissionLevel = "editor"
	// PermissionLevelOwner grants full access including permission management.
	PermissionLevelOwner PermissionLevel = "owner"
)

// ParsePermissionLevel validates a raw level string.
func ParsePermissionLevel(rawInput string) (PermissionLevel, error) {
	switch PermissionLevel(strings.ToLower(strings.TrimSpace(rawInput))) {
	case PermissionLevelViewer:
		return PermissionLevelViewer, nil
	case PermissionLevelCommenter:
		return PermissionLevelCommenter, nil
	case PermissionLevelEditor:
		return PermissionLevelEditor, nil
	case PermissionLevelOwner:
		return PermissionLevelOwner, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPermissionLevel, rawInput)
	}
}

// String returns the level's wire representation.
func (level PermissionLevel) String() string {
	return string(level)
}

func (level PermissionLevel) rank() int {
	switch level {
	case PermissionLevelViewer:
		return 1
	case PermissionLevelCommenter:
		return 2
	case PermissionLevelEditor:
		return 3
	case PermissionLevelOwner:
		return 4
	default:
		return 0
	}
}

// CanRead reports whether the level allows reading document state.
func (level PermissionLevel) CanRead() bool {
	return level.rank() >= PermissionLevelViewer.rank()
}

// CanComment reports whether the level allows creating comment threads.
func (level PermissionLevel) CanComment() bool {
	return level.rank() >= PermissionLevelCommenter.rank()
}

// CanWrite reports whether the level allows appending document updates.
func (level PermissionLevel) CanWrite() bool {
	return level.rank() >= PermissionLevelEditor.rank()
}

// CanManage reports whether the level allows granting permissions.
func (level PermissionLevel) CanManage() bool {
	return level.rank() >= PermissionLevelOwner.rank()
}

// Document stores per-document metadata and an advisory content snapshot.
// The update log, not the content column, is the source of truth.
type Document struct {
	DocumentID  string `gorm:"column:document_id;primaryKey;size:190;not null"`
	OwnerID     string `gorm:"column:owner_id;size:190;not null;index"`
	Content     string `gorm:"column:content;type:text"`
	UpdatedAtMs int64  `gorm:"column:updated_at_ms;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

// UpdateRecord stores one append-only replicated-state delta.
type UpdateRecord struct {
	UpdateID    int64  `gorm:"column:update_id;primaryKey;autoIncrement"`
	DocumentID  string `gorm:"column:document_id;size:190;not null;index:idx_doc_updates_doc_created,priority:1"`
	UserID      string `gorm:"column:user_id;size:190;not null"`
	Payload     []byte `gorm:"column:payload;type:blob;not null"`
	CreatedAtMs int64  `gorm:"column:created_at_ms;not null;index:idx_doc_updates_doc_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (UpdateRecord) TableName() string {
	return "document_updates"
}

// Permission stores one explicit (document, user) access grant.
type Permission struct {
	DocumentID  string `gorm:"column:document_id;primaryKey;size:190;not null"`
	UserID      string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Level       string `gorm:"column:permission_level;size:32;not null"`
	GrantedBy   string `gorm:"column:granted_by;size:190"`
	CreatedAtMs int64  `gorm:"column:created_at_ms;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Permission) TableName() string {
	return "document_permissions"
}

package threads

import (
	"errors"
	"fmt"
	"strings"

	"github.com/inkstreamlabs/inkstream/backend/internal/docsync"
)

var (
	// ErrInvalidThreadID indicates that a thread identifier is empty or exceeds storage bounds.
	ErrInvalidThreadID = errors.New("threads: invalid thread id")
	// ErrInvalidCommentID indicates that a comment identifier is empty or exceeds storage bounds.
	ErrInvalidCommentID = errors.New("threads: invalid comment id")
	// ErrInvalidStatus indicates an unknown thread status value.
	ErrInvalidStatus = errors.New("threads: invalid status")
	// ErrEmptyContent indicates a comment body with no content.
	ErrEmptyContent = errors.New("threads: empty content")
)

const maxIdentifierLength = 190

// ThreadID represents a validated thread identifier.
type ThreadID string

// NewThreadID validates raw input and returns a ThreadID.
func NewThreadID(rawInput string) (ThreadID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidThreadID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidThreadID, maxIdentifierLength)
	}
	return ThreadID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ThreadID) String() string {
	return string(id)
}

// CommentID represents a validated comment identifier.
type CommentID string

// NewCommentID validates raw input and returns a CommentID.
func NewCommentID(rawInput string) (CommentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCommentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidCommentID, maxIdentifierLength)
	}
	return CommentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id CommentID) String() string {
	return string(id)
}

// Status enumerates the thread lifecycle states. Both states are
// revisitable; resolved threads can be reopened.
type Status string

const (
	// StatusOpen is the initial thread state.
	StatusOpen Status = "open"
	// StatusResolved marks a thread as handled.
	StatusResolved Status = "resolved"
)

// ParseStatus validates a raw status string.
func ParseStatus(rawInput string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(rawInput))) {
	case StatusOpen:
		return StatusOpen, nil
	case StatusResolved:
		return StatusResolved, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, rawInput)
	}
}

// String returns the status wire representation.
func (status Status) String() string {
	return string(status)
}

// Role is the thread-level capability derived from a document permission.
type Role string

const (
	// RoleEditor can resolve and delete any thread on the document.
	RoleEditor Role = "editor"
	// RoleComment can create threads and reply only.
	RoleComment Role = "comment"
)

// RoleForLevel maps a document permission level onto a thread role.
func RoleForLevel(level docsync.PermissionLevel) Role {
	if level.CanWrite() {
		return RoleEditor
	}
	return RoleComment
}

// Thread is the relational mirror row for one comment thread. The
// replicated sub-document is the source of truth; this row exists for
// listing and filtering without replaying the update log.
type Thread struct {
	ThreadID      string `gorm:"column:thread_id;primaryKey;size:190;not null"`
	DocumentID    string `gorm:"column:document_id;size:190;not null;index:idx_threads_doc_status,priority:1"`
	Status        string `gorm:"column:status;size:16;not null;index:idx_threads_doc_status,priority:2"`
	CreatedBy     string `gorm:"column:created_by;size:190;not null"`
	ResolvedBy    string `gorm:"column:resolved_by;size:190"`
	ResolvedAtMs  int64  `gorm:"column:resolved_at_ms;not null;default:0"`
	SelectionJSON string `gorm:"column:selection_json;type:text"`
	CreatedAtMs   int64  `gorm:"column:created_at_ms;not null"`
	UpdatedAtMs   int64  `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Thread) TableName() string {
	return "comment_threads"
}

// Comment is the relational mirror row for one thread comment.
type Comment struct {
	CommentID   string `gorm:"column:comment_id;primaryKey;size:190;not null"`
	ThreadID    string `gorm:"column:thread_id;size:190;not null;index"`
	AuthorID    string `gorm:"column:author_id;size:190;not null"`
	Content     string `gorm:"column:content;type:text;not null"`
	CreatedAtMs int64  `gorm:"column:created_at_ms;not null"`
	UpdatedAtMs int64  `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "thread_comments"
}

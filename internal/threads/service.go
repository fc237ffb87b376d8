package threads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkstreamlabs/inkstream/backend/internal/crdt"
	"github.com/inkstreamlabs/inkstream/backend/internal/docsync"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase    = errors.New("database handle is required")
	errMissingSyncService = errors.New("docsync service is required")
	errMissingIDProvider  = errors.New("id provider is required")
	noOpLogger            = zap.NewNop()

	// ErrThreadNotFound is returned when no mirror row exists for a thread.
	ErrThreadNotFound = errors.New("threads: thread not found")
	// ErrCommentNotFound is returned when no mirror row exists for a comment.
	ErrCommentNotFound = errors.New("threads: comment not found")
	// ErrNotModerator is returned when a caller is neither the thread's
	// creator nor holds an editor-capable document level.
	ErrNotModerator = errors.New("threads: caller may not moderate thread")
	// ErrNotAuthor is returned when a caller edits someone else's comment.
	ErrNotAuthor = errors.New("threads: caller is not the comment author")
)

// ServiceError mirrors the docsync error shape with operation.reason codes.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable error code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

const (
	opServiceNew    = "threads.service.new"
	opCreateThread  = "threads.create"
	opGetThread     = "threads.get"
	opListThreads   = "threads.list"
	opSetResolution = "threads.set_resolution"
	opUpdateThread  = "threads.update"
	opDeleteThread  = "threads.delete"
	opAddComment    = "threads.add_comment"
	opEditComment   = "threads.edit_comment"

	fieldDocumentID = "document_id"
	fieldThreadID   = "thread_id"
	fieldUserID     = "user_id"

	reasonMirrorWriteFailed     = "dual_write_inconsistency"
	reasonReplicatedApplyFailed = "replicated_apply_failed"
	reasonQueryFailed           = "query_failed"
	reasonIDGenerationFailed    = "id_generation_failed"

	threadKeyPrefix  = "thread/"
	commentKeyPrefix = "comment/"
)

func threadKey(threadID string) string {
	return threadKeyPrefix + threadID
}

func commentKey(threadID, commentID string) string {
	return commentKeyPrefix + threadID + "/" + commentID
}

// threadEntry is the replicated sub-document value for one thread.
type threadEntry struct {
	Status       string          `json:"status"`
	CreatedBy    string          `json:"created_by"`
	ResolvedBy   string          `json:"resolved_by,omitempty"`
	ResolvedAtMs int64           `json:"resolved_at_ms,omitempty"`
	Selection    json.RawMessage `json:"selection,omitempty"`
}

// commentEntry is the replicated sub-document value for one comment.
type commentEntry struct {
	AuthorID    string `json:"author_id"`
	Content     string `json:"content"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// ServiceConfig describes the dependencies required to build a Service.
type ServiceConfig struct {
	Database    *gorm.DB
	SyncService *docsync.Service
	Clock       func() time.Time
	IDProvider  docsync.IDProvider
	Logger      *zap.Logger
}

// Service manages comment threads: replicated sub-document writes first,
// relational mirror rows second.
type Service struct {
	db         *gorm.DB
	sync       *docsync.Service
	clock      func() time.Time
	idProvider docsync.IDProvider
	logger     *zap.Logger
}

// NewService validates configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.SyncService == nil {
		return nil, newServiceError(opServiceNew, "missing_sync_service", errMissingSyncService)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		sync:       cfg.SyncService,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ThreadView is a thread served back to clients, combining mirror fields.
type ThreadView struct {
	ThreadID     string          `json:"threadId"`
	DocumentID   string          `json:"documentId"`
	Status       string          `json:"status"`
	CreatedBy    string          `json:"createdBy"`
	ResolvedBy   string          `json:"resolvedBy,omitempty"`
	ResolvedAtMs int64           `json:"resolvedAt,omitempty"`
	Selection    json.RawMessage `json:"selection,omitempty"`
	CreatedAtMs  int64           `json:"createdAt"`
	Comments     []CommentView   `json:"comments,omitempty"`
}

// CommentView is a comment served back to clients.
type CommentView struct {
	CommentID   string `json:"commentId"`
	ThreadID    string `json:"threadId"`
	AuthorID    string `json:"authorId"`
	Content     string `json:"content"`
	CreatedAtMs int64  `json:"createdAt"`
}

func viewFromMirror(thread Thread, comments []Comment) ThreadView {
	view := ThreadView{
		ThreadID:     thread.ThreadID,
		DocumentID:   thread.DocumentID,
		Status:       thread.Status,
		CreatedBy:    thread.CreatedBy,
		ResolvedBy:   thread.ResolvedBy,
		ResolvedAtMs: thread.ResolvedAtMs,
		CreatedAtMs:  thread.CreatedAtMs,
	}
	if thread.SelectionJSON != "" {
		view.Selection = json.RawMessage(thread.SelectionJSON)
	}
	for _, comment := range comments {
		view.Comments = append(view.Comments, CommentView{
			CommentID:   comment.CommentID,
			ThreadID:    comment.ThreadID,
			AuthorID:    comment.AuthorID,
			Content:     comment.Content,
			CreatedAtMs: comment.CreatedAtMs,
		})
	}
	return view
}

// CreateThread opens a new thread with its first comment. Requires
// commenter level or higher on the parent document. The replicated write
// happens first; a mirror failure afterwards is logged and swallowed
// because the replicated document remains authoritative.
func (s *Service) CreateThread(ctx context.Context, documentID docsync.DocumentID, userID docsync.UserID, selection json.RawMessage, content string) (ThreadView, error) {
	if _, err := s.sync.Authorize(ctx, documentID, userID, docsync.ActionComment); err != nil {
		return ThreadView{}, err
	}
	if strings.TrimSpace(content) == "" {
		return ThreadView{}, ErrEmptyContent
	}

	threadID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateThread, reasonIDGenerationFailed, err, zap.String(fieldDocumentID, documentID.String()))
		return ThreadView{}, newServiceError(opCreateThread, reasonIDGenerationFailed, err)
	}
	commentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateThread, reasonIDGenerationFailed, err, zap.String(fieldDocumentID, documentID.String()))
		return ThreadView{}, newServiceError(opCreateThread, reasonIDGenerationFailed, err)
	}

	nowMs := s.clock().UTC().UnixMilli()
	entry := threadEntry{
		Status:    StatusOpen.String(),
		CreatedBy: userID.String(),
		Selection: selection,
	}
	reply := commentEntry{
		AuthorID:    userID.String(),
		Content:     content,
		CreatedAtMs: nowMs,
	}

	mutation := func(replicated *crdt.LWWDocument) error {
		if err := setReplicatedValue(replicated, threadKey(threadID), entry, s.appendComment(ctx, documentID, userID)); err != nil {
			return err
		}
		return setReplicatedValue(replicated, commentKey(threadID, commentID), reply, s.appendComment(ctx, documentID, userID))
	}
	if err := s.applyReplicated(ctx, documentID, userID, opCreateThread, mutation); err != nil {
		return ThreadView{}, err
	}

	thread := Thread{
		ThreadID:      threadID,
		DocumentID:    documentID.String(),
		Status:        StatusOpen.String(),
		CreatedBy:     userID.String(),
		SelectionJSON: string(selection),
		CreatedAtMs:   nowMs,
		UpdatedAtMs:   nowMs,
	}
	comment := Comment{
		CommentID:   commentID,
		ThreadID:    threadID,
		AuthorID:    userID.String(),
		Content:     content,
		CreatedAtMs: nowMs,
		UpdatedAtMs: nowMs,
	}
	if err := s.db.WithContext(ctx).Create(&thread).Error; err != nil {
		s.logMirrorFailure(opCreateThread, err, documentID.String(), threadID)
	} else if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		s.logMirrorFailure(opCreateThread, err, documentID.String(), threadID)
	}

	return viewFromMirror(thread, []Comment{comment}), nil
}

// GetThread returns one thread with its comments after a read check
// against the parent document.
func (s *Service) GetThread(ctx context.Context, threadID ThreadID, userID docsync.UserID) (ThreadView, error) {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return ThreadView{}, err
	}
	documentID, err := docsync.NewDocumentID(thread.DocumentID)
	if err != nil {
		return ThreadView{}, newServiceError(opGetThread, "document_id_invalid", err)
	}
	if _, err := s.sync.Authorize(ctx, documentID, userID, docsync.ActionRead); err != nil {
		return ThreadView{}, err
	}

	var comments []Comment
	if err := s.db.WithContext(ctx).
		Where("thread_id = ?", thread.ThreadID).
		Order("created_at_ms ASC").
		Find(&comments).Error; err != nil {
		s.logError(opGetThread, reasonQueryFailed, err, zap.String(fieldThreadID, thread.ThreadID))
		return ThreadView{}, newServiceError(opGetThread, reasonQueryFailed, err)
	}
	return viewFromMirror(thread, comments), nil
}

// ListThreads returns the mirror rows for a document, optionally filtered
// by status, without replaying the update log.
func (s *Service) ListThreads(ctx context.Context, documentID docsync.DocumentID, userID docsync.UserID, status *Status) ([]ThreadView, error) {
	if _, err := s.sync.Authorize(ctx, documentID, userID, docsync.ActionRead); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Order("created_at_ms ASC")
	if status != nil {
		query = query.Where("status = ?", status.String())
	}

	var rows []Thread
	if err := query.Find(&rows).Error; err != nil {
		s.logError(opListThreads, reasonQueryFailed, err, zap.String(fieldDocumentID, documentID.String()))
		return nil, newServiceError(opListThreads, reasonQueryFailed, err)
	}

	views := make([]ThreadView, 0, len(rows))
	for _, row := range rows {
		views = append(views, viewFromMirror(row, nil))
	}
	return views, nil
}

// Resolve marks a thread resolved. Allowed for the thread's creator or any
// caller whose document level maps to the editor thread role.
func (s *Service) Resolve(ctx context.Context, threadID ThreadID, userID docsync.UserID) (ThreadView, error) {
	return s.setResolution(ctx, threadID, userID, StatusResolved)
}

// Unresolve reopens a resolved thread under the same authority rule.
func (s *Service) Unresolve(ctx context.Context, threadID ThreadID, userID docsync.UserID) (ThreadView, error) {
	return s.setResolution(ctx, threadID, userID, StatusOpen)
}

func (s *Service) setResolution(ctx context.Context, threadID ThreadID, userID docsync.UserID, status Status) (ThreadView, error) {
	thread, documentID, err := s.loadModeratedThread(ctx, threadID, userID)
	if err != nil {
		return ThreadView{}, err
	}

	nowMs := s.clock().UTC().UnixMilli()
	entry := threadEntry{
		Status:    status.String(),
		CreatedBy: thread.CreatedBy,
		Selection: json.RawMessage(thread.SelectionJSON),
	}
	if status == StatusResolved {
		entry.ResolvedBy = userID.String()
		entry.ResolvedAtMs = nowMs
	}

	// Replicated sub-document first, relational mirror second.
	mutation := func(replicated *crdt.LWWDocument) error {
		return setReplicatedValue(replicated, threadKey(thread.ThreadID), entry, s.appendComment(ctx, documentID, userID))
	}
	if err := s.applyReplicated(ctx, documentID, userID, opSetResolution, mutation); err != nil {
		return ThreadView{}, err
	}

	thread.Status = status.String()
	thread.ResolvedBy = entry.ResolvedBy
	thread.ResolvedAtMs = entry.ResolvedAtMs
	thread.UpdatedAtMs = nowMs
	if err := s.db.WithContext(ctx).Save(&thread).Error; err != nil {
		s.logMirrorFailure(opSetResolution, err, thread.DocumentID, thread.ThreadID)
	}
	return viewFromMirror(thread, nil), nil
}

// UpdateSelection replaces a thread's selection anchor under the same
// authority rule as resolution changes.
func (s *Service) UpdateSelection(ctx context.Context, threadID ThreadID, userID docsync.UserID, selection json.RawMessage) (ThreadView, error) {
	thread, documentID, err := s.loadModeratedThread(ctx, threadID, userID)
	if err != nil {
		return ThreadView{}, err
	}

	status, err := ParseStatus(thread.Status)
	if err != nil {
		return ThreadView{}, newServiceError(opUpdateThread, "status_invalid", err)
	}
	entry := threadEntry{
		Status:       status.String(),
		CreatedBy:    thread.CreatedBy,
		ResolvedBy:   thread.ResolvedBy,
		ResolvedAtMs: thread.ResolvedAtMs,
		Selection:    selection,
	}
	mutation := func(replicated *crdt.LWWDocument) error {
		return setReplicatedValue(replicated, threadKey(thread.ThreadID), entry, s.appendComment(ctx, documentID, userID))
	}
	if err := s.applyReplicated(ctx, documentID, userID, opUpdateThread, mutation); err != nil {
		return ThreadView{}, err
	}

	thread.SelectionJSON = string(selection)
	thread.UpdatedAtMs = s.clock().UTC().UnixMilli()
	if err := s.db.WithContext(ctx).Save(&thread).Error; err != nil {
		s.logMirrorFailure(opUpdateThread, err, thread.DocumentID, thread.ThreadID)
	}
	return viewFromMirror(thread, nil), nil
}

// Delete removes a thread and cascades its comments, in both the
// replicated sub-document (as tombstones) and the mirror.
func (s *Service) Delete(ctx context.Context, threadID ThreadID, userID docsync.UserID) error {
	thread, documentID, err := s.loadModeratedThread(ctx, threadID, userID)
	if err != nil {
		return err
	}

	var comments []Comment
	if err := s.db.WithContext(ctx).
		Where("thread_id = ?", thread.ThreadID).
		Find(&comments).Error; err != nil {
		s.logError(opDeleteThread, reasonQueryFailed, err, zap.String(fieldThreadID, thread.ThreadID))
		return newServiceError(opDeleteThread, reasonQueryFailed, err)
	}

	mutation := func(replicated *crdt.LWWDocument) error {
		if err := deleteReplicatedKey(replicated, threadKey(thread.ThreadID), s.appendComment(ctx, documentID, userID)); err != nil {
			return err
		}
		for _, comment := range comments {
			if err := deleteReplicatedKey(replicated, commentKey(thread.ThreadID, comment.CommentID), s.appendComment(ctx, documentID, userID)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := s.applyReplicated(ctx, documentID, userID, opDeleteThread, mutation); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).
		Where("thread_id = ?", thread.ThreadID).
		Delete(&Comment{}).Error; err != nil {
		s.logMirrorFailure(opDeleteThread, err, thread.DocumentID, thread.ThreadID)
		return nil
	}
	if err := s.db.WithContext(ctx).
		Where("thread_id = ?", thread.ThreadID).
		Delete(&Thread{}).Error; err != nil {
		s.logMirrorFailure(opDeleteThread, err, thread.DocumentID, thread.ThreadID)
	}
	return nil
}

// AddComment appends a reply to an existing thread. Requires commenter
// level or higher on the parent document.
func (s *Service) AddComment(ctx context.Context, threadID ThreadID, userID docsync.UserID, content string) (CommentView, error) {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return CommentView{}, err
	}
	documentID, err := docsync.NewDocumentID(thread.DocumentID)
	if err != nil {
		return CommentView{}, newServiceError(opAddComment, "document_id_invalid", err)
	}
	if _, err := s.sync.Authorize(ctx, documentID, userID, docsync.ActionComment); err != nil {
		return CommentView{}, err
	}
	if strings.TrimSpace(content) == "" {
		return CommentView{}, ErrEmptyContent
	}

	commentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddComment, reasonIDGenerationFailed, err, zap.String(fieldThreadID, thread.ThreadID))
		return CommentView{}, newServiceError(opAddComment, reasonIDGenerationFailed, err)
	}

	nowMs := s.clock().UTC().UnixMilli()
	entry := commentEntry{
		AuthorID:    userID.String(),
		Content:     content,
		CreatedAtMs: nowMs,
	}
	mutation := func(replicated *crdt.LWWDocument) error {
		return setReplicatedValue(replicated, commentKey(thread.ThreadID, commentID), entry, s.appendComment(ctx, documentID, userID))
	}
	if err := s.applyReplicated(ctx, documentID, userID, opAddComment, mutation); err != nil {
		return CommentView{}, err
	}

	comment := Comment{
		CommentID:   commentID,
		ThreadID:    thread.ThreadID,
		AuthorID:    userID.String(),
		Content:     content,
		CreatedAtMs: nowMs,
		UpdatedAtMs: nowMs,
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		s.logMirrorFailure(opAddComment, err, thread.DocumentID, thread.ThreadID)
	}
	return CommentView{
		CommentID:   comment.CommentID,
		ThreadID:    comment.ThreadID,
		AuthorID:    comment.AuthorID,
		Content:     comment.Content,
		CreatedAtMs: comment.CreatedAtMs,
	}, nil
}

// EditComment replaces a comment's text. Only the author may edit.
func (s *Service) EditComment(ctx context.Context, threadID ThreadID, commentID CommentID, userID docsync.UserID, content string) (CommentView, error) {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return CommentView{}, err
	}
	documentID, err := docsync.NewDocumentID(thread.DocumentID)
	if err != nil {
		return CommentView{}, newServiceError(opEditComment, "document_id_invalid", err)
	}
	if _, err := s.sync.Authorize(ctx, documentID, userID, docsync.ActionComment); err != nil {
		return CommentView{}, err
	}
	if strings.TrimSpace(content) == "" {
		return CommentView{}, ErrEmptyContent
	}

	var comment Comment
	err = s.db.WithContext(ctx).
		Where("comment_id = ? AND thread_id = ?", commentID.String(), thread.ThreadID).
		Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CommentView{}, ErrCommentNotFound
	}
	if err != nil {
		s.logError(opEditComment, reasonQueryFailed, err, zap.String(fieldThreadID, thread.ThreadID))
		return CommentView{}, newServiceError(opEditComment, reasonQueryFailed, err)
	}
	if comment.AuthorID != userID.String() {
		return CommentView{}, ErrNotAuthor
	}

	entry := commentEntry{
		AuthorID:    comment.AuthorID,
		Content:     content,
		CreatedAtMs: comment.CreatedAtMs,
	}
	mutation := func(replicated *crdt.LWWDocument) error {
		return setReplicatedValue(replicated, commentKey(thread.ThreadID, comment.CommentID), entry, s.appendComment(ctx, documentID, userID))
	}
	if err := s.applyReplicated(ctx, documentID, userID, opEditComment, mutation); err != nil {
		return CommentView{}, err
	}

	comment.Content = content
	comment.UpdatedAtMs = s.clock().UTC().UnixMilli()
	if err := s.db.WithContext(ctx).Save(&comment).Error; err != nil {
		s.logMirrorFailure(opEditComment, err, thread.DocumentID, thread.ThreadID)
	}
	return CommentView{
		CommentID:   comment.CommentID,
		ThreadID:    comment.ThreadID,
		AuthorID:    comment.AuthorID,
		Content:     comment.Content,
		CreatedAtMs: comment.CreatedAtMs,
	}, nil
}

type appendFunc func(payload []byte) error

func (s *Service) appendComment(ctx context.Context, documentID docsync.DocumentID, userID docsync.UserID) appendFunc {
	return func(payload []byte) error {
		_, err := s.sync.AppendCommentUpdate(ctx, documentID, userID, payload)
		return err
	}
}

// applyReplicated replays the current document state, applies the mutation
// to it, and appends the produced deltas to the update log.
func (s *Service) applyReplicated(ctx context.Context, documentID docsync.DocumentID, userID docsync.UserID, operation string, mutation func(*crdt.LWWDocument) error) error {
	replicated, err := s.sync.Reconstruct(ctx, documentID, userID)
	if err != nil {
		return err
	}
	if err := mutation(replicated); err != nil {
		s.logError(operation, reasonReplicatedApplyFailed, err, zap.String(fieldDocumentID, documentID.String()))
		return err
	}
	return nil
}

func setReplicatedValue(replicated *crdt.LWWDocument, key string, value any, appendDelta appendFunc) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	delta, err := replicated.Set(key, encoded)
	if err != nil {
		return err
	}
	return appendDelta(delta)
}

func deleteReplicatedKey(replicated *crdt.LWWDocument, key string, appendDelta appendFunc) error {
	delta, err := replicated.Delete(key)
	if err != nil {
		return err
	}
	return appendDelta(delta)
}

func (s *Service) loadThread(ctx context.Context, threadID ThreadID) (Thread, error) {
	var thread Thread
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID.String()).
		Take(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Thread{}, ErrThreadNotFound
	}
	if err != nil {
		s.logError(opGetThread, reasonQueryFailed, err, zap.String(fieldThreadID, threadID.String()))
		return Thread{}, newServiceError(opGetThread, reasonQueryFailed, err)
	}
	return thread, nil
}

// loadModeratedThread loads a thread and checks the moderation rule: the
// creator may always moderate their own thread; otherwise the caller's
// document level must map to the editor thread role.
func (s *Service) loadModeratedThread(ctx context.Context, threadID ThreadID, userID docsync.UserID) (Thread, docsync.DocumentID, error) {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return Thread{}, "", err
	}
	documentID, err := docsync.NewDocumentID(thread.DocumentID)
	if err != nil {
		return Thread{}, "", newServiceError(opSetResolution, "document_id_invalid", err)
	}

	resolution, err := s.sync.ResolveAccess(ctx, documentID, userID)
	if err != nil {
		return Thread{}, "", err
	}
	if resolution.Kind == docsync.ResolutionNone {
		return Thread{}, "", docsync.ErrNoAccess
	}
	if thread.CreatedBy != userID.String() && RoleForLevel(resolution.Level) != RoleEditor {
		return Thread{}, "", ErrNotModerator
	}
	return thread, documentID, nil
}

func (s *Service) logMirrorFailure(operation string, err error, documentID, threadID string) {
	// The replicated write already succeeded; the mirror is a derived
	// projection, so this inconsistency is reported but non-fatal.
	s.loggerOrDefault().Warn("thread mirror write failed",
		zap.String("operation", operation),
		zap.String("reason", reasonMirrorWriteFailed),
		zap.String(fieldDocumentID, documentID),
		zap.String(fieldThreadID, threadID),
		zap.Error(err))
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("threads service error", attrs...)
}

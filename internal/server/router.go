package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/inkstreamlabs/inkstream/backend/internal/docsync"
	"github.com/inkstreamlabs/inkstream/backend/internal/presence"
	"github.com/inkstreamlabs/inkstream/backend/internal/ratelimit"
	"github.com/inkstreamlabs/inkstream/backend/internal/threads"
)

const userIDContextKey = "inkstream_user_id"

const (
	errorCodeUnauthenticated   = "UNAUTHENTICATED"
	errorCodeNotFoundOrDenied  = "NOT_FOUND_OR_NO_ACCESS"
	errorCodeForbidden         = "FORBIDDEN"
	errorCodeMalformedPayload  = "MALFORMED_PAYLOAD"
	errorCodeValidation        = "VALIDATION_ERROR"
	errorCodeAccessCheckFailed = "ACCESS_CHECK_FAILED"
	errorCodeStoreError        = "STORE_ERROR"
	errorCodeRateLimited       = "RATE_LIMITED"
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingSyncService   = errors.New("sync service dependency required")
	errMissingThreadService = errors.New("thread service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager validates bearer tokens and yields the caller's user id.
type TokenManager interface {
	ValidateToken(token string) (string, error)
}

type Dependencies struct {
	TokenManager  TokenManager
	SyncService   *docsync.Service
	ThreadService *threads.Service
	PresenceHub   *presence.Hub
	Limiter       *ratelimit.Limiter
	Logger        *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.SyncService == nil {
		return nil, errMissingSyncService
	}
	if deps.ThreadService == nil {
		return nil, errMissingThreadService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := deps.PresenceHub
	if hub == nil {
		hub = presence.NewHub()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:        deps.TokenManager,
		syncService:   deps.SyncService,
		threadService: deps.ThreadService,
		hub:           hub,
		limiter:       deps.Limiter,
		logger:        logger,
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.POST("/documents", handler.handleCreateDocument)
	protected.GET("/documents/:id", handler.handleGetDocument)
	protected.POST("/documents/:id/permissions", handler.handleGrantPermission)

	protected.GET("/documents/:id/updates", handler.handleListUpdates)
	protected.POST("/documents/:id/updates", handler.handleAppendUpdate)
	protected.DELETE("/documents/:id/updates", handler.handlePruneUpdates)

	protected.POST("/documents/:id/threads", handler.handleCreateThread)
	protected.GET("/documents/:id/threads", handler.handleListThreads)
	protected.POST("/documents/:id/threads/:threadId/resolve", handler.handleResolveThread)
	protected.POST("/documents/:id/threads/:threadId/unresolve", handler.handleUnresolveThread)

	protected.GET("/comment-threads/:threadId", handler.handleGetThread)
	protected.PUT("/comment-threads/:threadId", handler.handleUpdateThread)
	protected.DELETE("/comment-threads/:threadId", handler.handleDeleteThread)
	protected.POST("/comment-threads/:threadId/comments", handler.handleAddComment)
	protected.PUT("/comment-threads/:threadId/comments/:commentId", handler.handleEditComment)

	protected.GET("/documents/:id/presence", handler.handlePresenceSocket)

	return router, nil
}

type httpHandler struct {
	tokens        TokenManager
	syncService   *docsync.Service
	threadService *threads.Service
	hub           *presence.Hub
	limiter       *ratelimit.Limiter
	logger        *zap.Logger
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorEnvelope{Code: errorCodeUnauthenticated, Message: errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorEnvelope{Code: errorCodeUnauthenticated, Message: "invalid bearer token"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter for websocket clients that cannot set
// headers during the upgrade handshake.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(c.Query("access_token"))
}

func (h *httpHandler) callerID(c *gin.Context) (docsync.UserID, bool) {
	userID, err := docsync.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorEnvelope{Code: errorCodeUnauthenticated, Message: "unauthenticated"})
		return "", false
	}
	return userID, true
}

func (h *httpHandler) documentParam(c *gin.Context) (docsync.DocumentID, bool) {
	documentID, err := docsync.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "invalid document id"})
		return "", false
	}
	return documentID, true
}

func (h *httpHandler) threadParam(c *gin.Context) (threads.ThreadID, bool) {
	threadID, err := threads.NewThreadID(c.Param("threadId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "invalid thread id"})
		return "", false
	}
	return threadID, true
}

type documentPayload struct {
	DocumentID string `json:"documentId"`
	OwnerID    string `json:"ownerId"`
	Content    string `json:"content,omitempty"`
	UpdatedAt  int64  `json:"updatedAt"`
}

func documentToPayload(document docsync.Document) documentPayload {
	return documentPayload{
		DocumentID: document.DocumentID,
		OwnerID:    document.OwnerID,
		Content:    document.Content,
		UpdatedAt:  document.UpdatedAtMs,
	}
}

func (h *httpHandler) handleCreateDocument(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}

	document, err := h.syncService.CreateDocument(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, documentToPayload(document))
}

func (h *httpHandler) handleGetDocument(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentParam(c)
	if !ok {
		return
	}

	var document docsync.Document
	var err error
	if c.Query("materialize") == "true" {
		document, err = h.syncService.MaterializeSnapshot(c.Request.Context(), documentID, userID)
	} else {
		document, err = h.syncService.GetDocument(c.Request.Context(), documentID, userID)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, documentToPayload(document))
}

type grantRequestPayload struct {
	UserID string `json:"userId"`
	Level  string `json:"level"`
}

func (h *httpHandler) handleGrantPermission(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentParam(c)
	if !ok {
		return
	}

	var request grantRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "invalid request body"})
		return
	}
	granteeID, err := docsync.NewUserID(request.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "invalid grantee user id"})
		return
	}
	level, err := docsync.ParsePermissionLevel(request.Level)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "invalid permission level"})
		return
	}

	grant, err := h.syncService.GrantPermission(c.Request.Context(), documentID, userID, granteeID, level)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"documentId": grant.DocumentID,
		"userId":     grant.UserID,
		"level":      grant.Level,
		"grantedAt":  grant.CreatedAtMs,
	})
}

type updatePayload struct {
	Data      docsync.WirePayload `json:"data"`
	CreatedAt int64               `json:"createdAt"`
	UserID    string              `json:"userId"`
}

func (h *httpHandler) handleListUpdates(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentParam(c)
	if !ok {
		return
	}
	afterMs, ok := h.optionalMillisQuery(c, "after")
	if !ok {
		return
	}

	stored, err := h.syncService.ListUpdates(c.Request.Context(), documentID, userID, afterMs)
	if err != nil {
		h.respondError(c, err)
		return
	}

	updates := make([]updatePayload, 0, len(stored))
	for _, update := range stored {
		updates = append(updates, updatePayload{
			Data:      docsync.EncodeWirePayload(update.Payload),
			CreatedAt: update.CreatedAtMs,
			UserID:    update.UserID,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"documentId": documentID.String(),
		"updates":    updates,
		"count":      len(updates),
	})
}

type appendRequestPayload struct {
	UpdateData json.RawMessage `json:"updateData"`
}

func (h *httpHandler) handleAppendUpdate(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(userID.String()) {
		c.JSON(http.StatusTooManyRequests, errorEnvelope{Code: errorCodeRateLimited, Message: "too many updates"})
		return
	}
	documentID, ok := h.documentParam(c)
	if !ok {
		return
	}

	var request appendRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "invalid request body"})
		return
	}
	if len(request.UpdateData) == 0 {
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "updateData is required"})
		return
	}

	payload, err := docsync.DecodeWirePayload(request.UpdateData)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeMalformedPayload, Message: "update payload is not a recognized encoding"})
		return
	}

	result, err := h.syncService.AppendUpdate(c.Request.Context(), documentID, userID, payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"updateId":  result.UpdateID,
		"createdAt": result.CreatedAtMs,
	})
}

func (h *httpHandler) handlePruneUpdates(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentParam(c)
	if !ok {
		return
	}
	olderThanMs, ok := h.optionalMillisQuery(c, "olderThan")
	if !ok {
		return
	}

	deleted, err := h.syncService.PruneUpdates(c.Request.Context(), documentID, userID, olderThanMs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"deletedCount": deleted,
	})
}

type createThreadRequestPayload struct {
	Selection json.RawMessage `json:"selection"`
	Content   string          `json:"content"`
}

func (h *httpHandler) handleCreateThread(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentParam(c)
	if !ok {
		return
	}

	var request createThreadRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "invalid request body"})
		return
	}

	view, err := h.threadService.CreateThread(c.Request.Context(), documentID, userID, request.Selection, request.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *httpHandler) handleListThreads(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentParam(c)
	if !ok {
		return
	}

	var statusFilter *threads.Status
	if raw := c.Query("status"); raw != "" {
		status, err := threads.ParseStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "invalid status filter"})
			return
		}
		statusFilter = &status
	}

	views, err := h.threadService.ListThreads(c.Request.Context(), documentID, userID, statusFilter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"documentId": documentID.String(),
		"threads":    views,
		"count":      len(views),
	})
}

func (h *httpHandler) handleResolveThread(c *gin.Context) {
	h.setThreadResolution(c, true)
}

func (h *httpHandler) handleUnresolveThread(c *gin.Context) {
	h.setThreadResolution(c, false)
}

func (h *httpHandler) setThreadResolution(c *gin.Context, resolved bool) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentParam(c)
	if !ok {
		return
	}
	threadID, ok := h.threadParam(c)
	if !ok {
		return
	}

	existing, err := h.threadService.GetThread(c.Request.Context(), threadID, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if existing.DocumentID != documentID.String() {
		c.JSON(http.StatusNotFound, errorEnvelope{Code: errorCodeNotFoundOrDenied, Message: "thread not found"})
		return
	}

	var view threads.ThreadView
	if resolved {
		view, err = h.threadService.Resolve(c.Request.Context(), threadID, userID)
	} else {
		view, err = h.threadService.Unresolve(c.Request.Context(), threadID, userID)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleGetThread(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	threadID, ok := h.threadParam(c)
	if !ok {
		return
	}

	view, err := h.threadService.GetThread(c.Request.Context(), threadID, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type updateThreadRequestPayload struct {
	Status    *string         `json:"status"`
	Selection json.RawMessage `json:"selection"`
}

func (h *httpHandler) handleUpdateThread(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	threadID, ok := h.threadParam(c)
	if !ok {
		return
	}

	var request updateThreadRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "invalid request body"})
		return
	}

	switch {
	case request.Status != nil:
		status, err := threads.ParseStatus(*request.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "invalid status"})
			return
		}
		var view threads.ThreadView
		if status == threads.StatusResolved {
			view, err = h.threadService.Resolve(c.Request.Context(), threadID, userID)
		} else {
			view, err = h.threadService.Unresolve(c.Request.Context(), threadID, userID)
		}
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	case len(request.Selection) > 0:
		view, err := h.threadService.UpdateSelection(c.Request.Context(), threadID, userID, request.Selection)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	default:
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "status or selection is required"})
	}
}

func (h *httpHandler) handleDeleteThread(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	threadID, ok := h.threadParam(c)
	if !ok {
		return
	}

	if err := h.threadService.Delete(c.Request.Context(), threadID, userID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type commentRequestPayload struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	threadID, ok := h.threadParam(c)
	if !ok {
		return
	}

	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "invalid request body"})
		return
	}

	view, err := h.threadService.AddComment(c.Request.Context(), threadID, userID, request.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *httpHandler) handleEditComment(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	threadID, ok := h.threadParam(c)
	if !ok {
		return
	}
	commentID, err := threads.NewCommentID(c.Param("commentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "invalid comment id"})
		return
	}

	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: "invalid request body"})
		return
	}

	view, err := h.threadService.EditComment(c.Request.Context(), threadID, commentID, userID, request.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handlePresenceSocket(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentParam(c)
	if !ok {
		return
	}

	if _, err := h.syncService.Authorize(c.Request.Context(), documentID, userID, docsync.ActionRead); err != nil {
		h.respondError(c, err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("presence upgrade failed", zap.Error(err))
		return
	}
	presence.ServeSocket(conn, h.hub, documentID.String(), userID.String(), h.logger)
}

// optionalMillisQuery parses a unix-millisecond query parameter, reporting
// false after writing a validation envelope when the value is not numeric.
func (h *httpHandler) optionalMillisQuery(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: name + " must be a unix millisecond timestamp"})
		return nil, false
	}
	return &value, true
}

type serviceCoder interface {
	Code() string
}

// respondError maps service failures onto the HTTP error taxonomy. The
// access gate's conflation of missing documents and missing grants is
// preserved: both surface as NOT_FOUND_OR_NO_ACCESS.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, docsync.ErrNoAccess),
		errors.Is(err, threads.ErrThreadNotFound),
		errors.Is(err, threads.ErrCommentNotFound):
		c.JSON(http.StatusNotFound, errorEnvelope{Code: errorCodeNotFoundOrDenied, Message: "not found or no access"})
	case errors.Is(err, docsync.ErrForbidden),
		errors.Is(err, threads.ErrNotModerator),
		errors.Is(err, threads.ErrNotAuthor):
		c.JSON(http.StatusForbidden, errorEnvelope{Code: errorCodeForbidden, Message: "insufficient permission"})
	case errors.Is(err, docsync.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeMalformedPayload, Message: "update payload is not a recognized encoding"})
	case errors.Is(err, docsync.ErrInvalidDocumentID),
		errors.Is(err, docsync.ErrInvalidUserID),
		errors.Is(err, docsync.ErrInvalidPermissionLevel),
		errors.Is(err, threads.ErrInvalidThreadID),
		errors.Is(err, threads.ErrInvalidCommentID),
		errors.Is(err, threads.ErrInvalidStatus),
		errors.Is(err, threads.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, errorEnvelope{Code: errorCodeValidation, Message: err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		code := errorCodeStoreError
		var coder serviceCoder
		if errors.As(err, &coder) && strings.Contains(coder.Code(), "authorize") {
			code = errorCodeAccessCheckFailed
		}
		c.JSON(http.StatusInternalServerError, errorEnvelope{Code: code, Message: "internal error"})
	}
}

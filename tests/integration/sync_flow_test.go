package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkstreamlabs/inkstream/backend/internal/auth"
	"github.com/inkstreamlabs/inkstream/backend/internal/crdt"
	"github.com/inkstreamlabs/inkstream/backend/internal/database"
	"github.com/inkstreamlabs/inkstream/backend/internal/docsync"
	"github.com/inkstreamlabs/inkstream/backend/internal/presence"
	"github.com/inkstreamlabs/inkstream/backend/internal/ratelimit"
	"github.com/inkstreamlabs/inkstream/backend/internal/server"
	"github.com/inkstreamlabs/inkstream/backend/internal/threads"
)

const (
	integrationSecret = "integration-secret"
	ownerUserID       = "user-owner"
	editorUserID      = "user-editor"
	jsonContentType   = "application/json"
)

type apiClient struct {
	baseURL string
	token   string
}

func (c apiClient) request(testContext *testing.T, method, path string, body any) (int, map[string]any) {
	testContext.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			testContext.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		request.Header.Set("Content-Type", jsonContentType)
	}

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()

	payload := map[string]any{}
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		testContext.Fatalf("failed to decode response: %v", err)
	}
	return response.StatusCode, payload
}

func TestDocumentSyncFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	databasePath := filepath.Join(testContext.TempDir(), "integration.db")
	db, err := database.OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(integrationSecret),
		Issuer:        "inkstream-auth",
		Audience:      "inkstream-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to build token issuer: %v", err)
	}

	syncService, err := docsync.NewService(docsync.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: docsync.NewUUIDProvider(),
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build sync service: %v", err)
	}
	threadService, err := threads.NewService(threads.ServiceConfig{
		Database:    db,
		SyncService: syncService,
		Clock:       time.Now,
		IDProvider:  docsync.NewUUIDProvider(),
		Logger:      zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build thread service: %v", err)
	}
	limiter, err := ratelimit.NewLimiter(ratelimit.Config{Limit: 100, Window: time.Minute})
	if err != nil {
		testContext.Fatalf("failed to build limiter: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:  tokenManager,
		SyncService:   syncService,
		ThreadService: threadService,
		PresenceHub:   presence.NewHub(),
		Limiter:       limiter,
		Logger:        zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	ownerToken, _, err := tokenManager.IssueToken(ownerUserID)
	if err != nil {
		testContext.Fatalf("failed to issue owner token: %v", err)
	}
	editorToken, _, err := tokenManager.IssueToken(editorUserID)
	if err != nil {
		testContext.Fatalf("failed to issue editor token: %v", err)
	}

	owner := apiClient{baseURL: testServer.URL, token: ownerToken}
	editor := apiClient{baseURL: testServer.URL, token: editorToken}

	status, created := owner.request(testContext, http.MethodPost, "/documents", nil)
	if status != http.StatusCreated {
		testContext.Fatalf("document creation failed: %d %v", status, created)
	}
	documentID := created["documentId"].(string)

	status, _ = owner.request(testContext, http.MethodPost, "/documents/"+documentID+"/permissions", map[string]any{
		"userId": editorUserID,
		"level":  "editor",
	})
	if status != http.StatusOK {
		testContext.Fatalf("permission grant failed: %d", status)
	}

	// Each writer produces real merge deltas from its own replica.
	ownerReplica := crdt.NewLWWDocument("client-owner")
	editorReplica := crdt.NewLWWDocument("client-editor")

	ownerDelta, err := ownerReplica.Set("title", json.RawMessage(`"Launch plan"`))
	if err != nil {
		testContext.Fatalf("failed to produce owner delta: %v", err)
	}
	editorDelta, err := editorReplica.Set("body", json.RawMessage(`"Draft text"`))
	if err != nil {
		testContext.Fatalf("failed to produce editor delta: %v", err)
	}

	appendUpdate := func(client apiClient, delta []byte) {
		status, payload := client.request(testContext, http.MethodPost, "/documents/"+documentID+"/updates", map[string]any{
			"updateData": docsync.EncodeWirePayload(delta),
		})
		if status != http.StatusOK || payload["success"] != true {
			testContext.Fatalf("append failed: %d %v", status, payload)
		}
	}
	appendUpdate(owner, ownerDelta)
	appendUpdate(editor, editorDelta)

	status, listed := editor.request(testContext, http.MethodGet, "/documents/"+documentID+"/updates", nil)
	if status != http.StatusOK {
		testContext.Fatalf("list failed: %d", status)
	}
	if listed["count"] != float64(2) {
		testContext.Fatalf("expected two stored updates, got %v", listed["count"])
	}

	// Replaying the log in either direction converges to the same state.
	updates := listed["updates"].([]any)
	forward := crdt.NewLWWDocument("replay-forward")
	backward := crdt.NewLWWDocument("replay-backward")
	deltas := make([][]byte, 0, len(updates))
	for _, entry := range updates {
		data := entry.(map[string]any)["data"].([]any)
		delta := make([]byte, len(data))
		for i, value := range data {
			delta[i] = byte(value.(float64))
		}
		deltas = append(deltas, delta)
	}
	for _, delta := range deltas {
		if err := forward.ApplyUpdate(delta); err != nil {
			testContext.Fatalf("forward replay failed: %v", err)
		}
	}
	for i := len(deltas) - 1; i >= 0; i-- {
		if err := backward.ApplyUpdate(deltas[i]); err != nil {
			testContext.Fatalf("backward replay failed: %v", err)
		}
	}
	if !forward.Equal(backward) {
		testContext.Fatalf("replay order changed the converged state")
	}
	title, ok := forward.Get("title")
	if !ok || string(title) != `"Launch plan"` {
		testContext.Fatalf("unexpected converged title: %s", title)
	}

	// Comment threads ride the same update log.
	status, thread := editor.request(testContext, http.MethodPost, "/documents/"+documentID+"/threads", map[string]any{
		"selection": map[string]any{"from": 0, "to": 11},
		"content":   "tighten this sentence",
	})
	if status != http.StatusCreated {
		testContext.Fatalf("thread creation failed: %d %v", status, thread)
	}
	threadID := thread["threadId"].(string)

	status, resolved := owner.request(testContext, http.MethodPost, fmt.Sprintf("/documents/%s/threads/%s/resolve", documentID, threadID), nil)
	if status != http.StatusOK || resolved["status"] != "resolved" {
		testContext.Fatalf("resolve failed: %d %v", status, resolved)
	}

	status, pruned := owner.request(testContext, http.MethodDelete, "/documents/"+documentID+"/updates", nil)
	if status != http.StatusOK {
		testContext.Fatalf("prune failed: %d", status)
	}
	if pruned["deletedCount"].(float64) < 2 {
		testContext.Fatalf("expected full prune, got %v", pruned["deletedCount"])
	}

	status, listed = owner.request(testContext, http.MethodGet, "/documents/"+documentID+"/updates", nil)
	if status != http.StatusOK || listed["count"] != float64(0) {
		testContext.Fatalf("expected empty log after prune, got %d %v", status, listed)
	}
}

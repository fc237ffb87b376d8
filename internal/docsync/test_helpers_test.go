package docsync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "docsync.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Document{}, &UpdateRecord{}, &Permission{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustDocumentID(t *testing.T, value string) DocumentID {
	t.Helper()
	id, err := NewDocumentID(value)
	if err != nil {
		t.Fatalf("unexpected document id error: %v", err)
	}
	return id
}

func mustCreateDocument(t *testing.T, service *Service, owner UserID) DocumentID {
	t.Helper()
	document, err := service.CreateDocument(context.Background(), owner)
	if err != nil {
		t.Fatalf("failed to create document: %v", err)
	}
	return mustDocumentID(t, document.DocumentID)
}

func mustGrant(t *testing.T, service *Service, documentID DocumentID, granter, grantee UserID, level PermissionLevel) {
	t.Helper()
	if _, err := service.GrantPermission(context.Background(), documentID, granter, grantee, level); err != nil {
		t.Fatalf("failed to grant %s: %v", level, err)
	}
}

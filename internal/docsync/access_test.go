package docsync

import (
	"context"
	"errors"
	"testing"
)

func TestAuthorizeImpliedOwnerWithoutPermissionRow(testContext *testing.T) {
	service := newTestService(testContext)
	owner := mustUserID(testContext, "user-owner")
	documentID := mustCreateDocument(testContext, service, owner)

	decision, err := service.Authorize(context.Background(), documentID, owner, ActionManage)
	if err != nil {
		testContext.Fatalf("expected owner authorization, got %v", err)
	}
	if decision.EffectiveLevel != PermissionLevelOwner {
		testContext.Fatalf("expected owner level, got %s", decision.EffectiveLevel)
	}
	if decision.Resolution.Kind != ResolutionImpliedOwner {
		testContext.Fatalf("expected implied-owner resolution, got %d", decision.Resolution.Kind)
	}
}

func TestAuthorizeExplicitRowOverridesNothingForStranger(testContext *testing.T) {
	service := newTestService(testContext)
	owner := mustUserID(testContext, "user-owner")
	stranger := mustUserID(testContext, "user-stranger")
	documentID := mustCreateDocument(testContext, service, owner)

	_, err := service.Authorize(context.Background(), documentID, stranger, ActionRead)
	if !errors.Is(err, ErrNoAccess) {
		testContext.Fatalf("expected ErrNoAccess, got %v", err)
	}
}

func TestAuthorizeMissingDocumentLooksLikeNoAccess(testContext *testing.T) {
	service := newTestService(testContext)
	caller := mustUserID(testContext, "user-anyone")
	missing := mustDocumentID(testContext, "no-such-document")

	_, err := service.Authorize(context.Background(), missing, caller, ActionRead)
	if !errors.Is(err, ErrNoAccess) {
		testContext.Fatalf("expected ErrNoAccess for missing document, got %v", err)
	}
}

func TestAuthorizeViewerCannotWrite(testContext *testing.T) {
	service := newTestService(testContext)
	owner := mustUserID(testContext, "user-owner")
	viewer := mustUserID(testContext, "user-viewer")
	documentID := mustCreateDocument(testContext, service, owner)
	mustGrant(testContext, service, documentID, owner, viewer, PermissionLevelViewer)

	if _, err := service.Authorize(context.Background(), documentID, viewer, ActionRead); err != nil {
		testContext.Fatalf("expected viewer read to succeed, got %v", err)
	}
	_, err := service.Authorize(context.Background(), documentID, viewer, ActionWrite)
	if !errors.Is(err, ErrForbidden) {
		testContext.Fatalf("expected ErrForbidden for viewer write, got %v", err)
	}
}

func TestAuthorizeLevelLattice(testContext *testing.T) {
	service := newTestService(testContext)
	owner := mustUserID(testContext, "user-owner")
	documentID := mustCreateDocument(testContext, service, owner)

	cases := []struct {
		level      PermissionLevel
		canComment bool
		canWrite   bool
		canManage  bool
	}{
		{PermissionLevelViewer, false, false, false},
		{PermissionLevelCommenter, true, false, false},
		{PermissionLevelEditor, true, true, false},
		{PermissionLevelOwner, true, true, true},
	}

	for _, testCase := range cases {
		grantee := mustUserID(testContext, "user-"+testCase.level.String())
		mustGrant(testContext, service, documentID, owner, grantee, testCase.level)

		// Every level can read.
		if _, err := service.Authorize(context.Background(), documentID, grantee, ActionRead); err != nil {
			testContext.Fatalf("%s: expected read, got %v", testCase.level, err)
		}

		_, commentErr := service.Authorize(context.Background(), documentID, grantee, ActionComment)
		if (commentErr == nil) != testCase.canComment {
			testContext.Fatalf("%s: comment decision mismatch: %v", testCase.level, commentErr)
		}
		_, writeErr := service.Authorize(context.Background(), documentID, grantee, ActionWrite)
		if (writeErr == nil) != testCase.canWrite {
			testContext.Fatalf("%s: write decision mismatch: %v", testCase.level, writeErr)
		}
		_, manageErr := service.Authorize(context.Background(), documentID, grantee, ActionManage)
		if (manageErr == nil) != testCase.canManage {
			testContext.Fatalf("%s: manage decision mismatch: %v", testCase.level, manageErr)
		}

		// Access monotonicity: a successful write check implies read.
		if writeErr == nil {
			if _, err := service.Authorize(context.Background(), documentID, grantee, ActionRead); err != nil {
				testContext.Fatalf("%s: writer could not read: %v", testCase.level, err)
			}
		}
	}
}

func TestGrantPermissionRequiresOwnerLevel(testContext *testing.T) {
	service := newTestService(testContext)
	owner := mustUserID(testContext, "user-owner")
	editor := mustUserID(testContext, "user-editor")
	other := mustUserID(testContext, "user-other")
	documentID := mustCreateDocument(testContext, service, owner)
	mustGrant(testContext, service, documentID, owner, editor, PermissionLevelEditor)

	_, err := service.GrantPermission(context.Background(), documentID, editor, other, PermissionLevelViewer)
	if !errors.Is(err, ErrForbidden) {
		testContext.Fatalf("expected ErrForbidden for editor grant, got %v", err)
	}
}

func TestParsePermissionLevelRejectsUnknownValues(testContext *testing.T) {
	if _, err := ParsePermissionLevel("admin"); !errors.Is(err, ErrInvalidPermissionLevel) {
		testContext.Fatalf("expected ErrInvalidPermissionLevel, got %v", err)
	}
	level, err := ParsePermissionLevel("  Editor ")
	if err != nil {
		testContext.Fatalf("expected case-insensitive parse, got %v", err)
	}
	if level != PermissionLevelEditor {
		testContext.Fatalf("expected editor, got %s", level)
	}
}

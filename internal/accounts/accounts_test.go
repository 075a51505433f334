package accounts_test

import (
	"context"
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"

	"github.com/conduit-vcs/conduit/internal/accounts"
)

func newTestUser(t *testing.T, app core.App, username string) *core.Record {
	t.Helper()
	col, err := app.FindCollectionByNameOrId("users")
	if err != nil {
		t.Fatal(err)
	}
	rec := core.NewRecord(col)
	rec.Set("username", username)
	rec.Set("email", username+"@test.com")
	rec.SetPassword("1234567890")
	if err := app.Save(rec); err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestUserIDByUsername_Found(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	user := newTestUser(t, app, "alice")

	store := &accounts.Store{App: app}
	id, ok, err := store.UserIDByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for existing user")
	}
	if id != user.Id {
		t.Errorf("expected id %q, got %q", user.Id, id)
	}
}

func TestUserIDByUsername_NotFound(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	store := &accounts.Store{App: app}
	id, ok, err := store.UserIDByUsername(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing user")
	}
	if id != "" {
		t.Errorf("expected empty id, got %q", id)
	}
}

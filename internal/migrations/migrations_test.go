package migrations_test

import (
	"testing"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"

	// trigger init() registrations
	_ "github.com/conduit-vcs/conduit/internal/migrations"
)

func TestSSHKeysCollectionFields(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	col, err := app.FindCollectionByNameOrId("ssh_keys")
	if err != nil {
		t.Fatal(err)
	}
	if col.Type != core.CollectionTypeBase {
		t.Errorf("expected base collection, got %q", col.Type)
	}

	assertFieldExists(t, col, "owner_user", core.FieldTypeRelation, true)
	assertFieldExists(t, col, "encoded_key", core.FieldTypeText, true)
	assertFieldExists(t, col, "created", core.FieldTypeAutodate, false)

	assertRelationTarget(t, app, col, "owner_user", "users")

	if col.ListRule == nil {
		t.Error("ssh_keys.ListRule should allow the owner or a superuser")
	}
	if col.CreateRule == nil {
		t.Error("ssh_keys.CreateRule should restrict creation to the owner")
	}
	if col.UpdateRule != nil {
		t.Error("ssh_keys.UpdateRule should be nil (superuser only)")
	}
}

func TestLFSTokensCollectionFields(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	col, err := app.FindCollectionByNameOrId("lfs_tokens")
	if err != nil {
		t.Fatal(err)
	}
	if col.Type != core.CollectionTypeBase {
		t.Errorf("expected base collection, got %q", col.Type)
	}

	assertFieldExists(t, col, "user_id", core.FieldTypeRelation, true)
	assertFieldExists(t, col, "token", core.FieldTypeText, true)
	assertFieldExists(t, col, "expires", core.FieldTypeDate, true)
	assertFieldExists(t, col, "created", core.FieldTypeAutodate, false)

	assertRelationTarget(t, app, col, "user_id", "users")

	if col.ListRule != nil || col.ViewRule != nil || col.CreateRule != nil ||
		col.UpdateRule != nil || col.DeleteRule != nil {
		t.Error("lfs_tokens rules should all be nil (backend-only access)")
	}
}

func TestAppSettingsCollectionExists(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	col, err := app.FindCollectionByNameOrId("app_settings")
	if err != nil {
		t.Fatal("app_settings collection not found:", err)
	}
	assertFieldExists(t, col, "module", core.FieldTypeText, true)
	assertFieldExists(t, col, "key", core.FieldTypeText, true)
	assertFieldExists(t, col, "value", core.FieldTypeJSON, false)
}

func TestAuditLogsCollectionExists(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	col, err := app.FindCollectionByNameOrId("audit_logs")
	if err != nil {
		t.Fatal("audit_logs collection not found:", err)
	}
	assertFieldExists(t, col, "action", core.FieldTypeText, true)
	assertFieldExists(t, col, "status", core.FieldTypeSelect, true)
	assertFieldExists(t, col, "ip", core.FieldTypeText, false)
}

func TestLFSTokenSettingsSeeded(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	rec, err := app.FindFirstRecordByFilter(
		"app_settings",
		"module = {:module} && key = {:key}",
		dbx.Params{"module": "lfs", "key": "token"},
	)
	if err != nil {
		t.Fatal("lfs/token settings row not seeded:", err)
	}
	if rec.GetString("module") != "lfs" || rec.GetString("key") != "token" {
		t.Errorf("unexpected module/key: %q/%q", rec.GetString("module"), rec.GetString("key"))
	}
}

// ─── Helpers ─────────────────────────────────────────────

func assertFieldExists(t *testing.T, col *core.Collection, name, fieldType string, required bool) {
	t.Helper()
	f := col.Fields.GetByName(name)
	if f == nil {
		t.Errorf("collection %q: field %q not found", col.Name, name)
		return
	}
	if f.Type() != fieldType {
		t.Errorf("collection %q.%s: expected type %q, got %q", col.Name, name, fieldType, f.Type())
	}
	var gotRequired bool
	switch tf := f.(type) {
	case *core.TextField:
		gotRequired = tf.Required
	case *core.RelationField:
		gotRequired = tf.Required
	case *core.DateField:
		gotRequired = tf.Required
	case *core.SelectField:
		gotRequired = tf.Required
	case *core.JSONField:
		gotRequired = tf.Required
	}
	if gotRequired != required {
		t.Errorf("collection %q.%s: expected required=%v, got %v", col.Name, name, required, gotRequired)
	}
}

func assertRelationTarget(t *testing.T, app core.App, col *core.Collection, fieldName, targetCollection string) {
	t.Helper()
	f := col.Fields.GetByName(fieldName)
	if f == nil {
		t.Errorf("collection %q: field %q not found", col.Name, fieldName)
		return
	}
	rf, ok := f.(*core.RelationField)
	if !ok {
		t.Errorf("collection %q.%s: expected RelationField, got %T", col.Name, fieldName, f)
		return
	}
	target, err := app.FindCollectionByNameOrId(rf.CollectionId)
	if err != nil {
		t.Errorf("collection %q.%s: relation target collection not found: %v", col.Name, fieldName, err)
		return
	}
	if target.Name != targetCollection {
		t.Errorf("collection %q.%s: expected relation to %q, got %q", col.Name, fieldName, targetCollection, target.Name)
	}
}

// Package hooks registers PocketBase event hooks for Conduit's account and
// key-management surface.
package hooks

import (
	"fmt"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"github.com/conduit-vcs/conduit/internal/audit"
)

// Register binds all custom event hooks to the PocketBase app.
func Register(app *pocketbase.PocketBase) {
	registerUserAuditHooks(app)
	registerLoginAuditHooks(app)
	registerSSHKeyAuditHooks(app)
	registerSuperuserHooks(app)
}

// registerUserAuditHooks writes audit records when users are created, updated, or
// deleted via PocketBase's built-in REST API. Both the "users" and
// "_superusers" collections are tracked. Uses request-level hooks to access
// e.Auth (the actor performing the operation).
func registerUserAuditHooks(app *pocketbase.PocketBase) {
	actorInfo := func(auth *core.Record) (string, string) {
		if auth != nil {
			return auth.Id, auth.GetString("email")
		}
		return "system", ""
	}

	for _, col := range []string{"users", "_superusers"} {
		col := col // capture loop variable

		app.OnRecordCreateRequest(col).BindFunc(func(e *core.RecordRequestEvent) error {
			err := e.Next()
			if err == nil {
				userID, userEmail := actorInfo(e.Auth)
				audit.Write(app, audit.Entry{
					UserID: userID, UserEmail: userEmail,
					Action: "user.create", ResourceType: "user",
					ResourceID: e.Record.Id, ResourceName: e.Record.GetString("email"),
					Status:    audit.StatusSuccess,
					IP:        e.RealIP(),
					UserAgent: e.Request.Header.Get("User-Agent"),
				})
			}
			return err
		})

		app.OnRecordUpdateRequest(col).BindFunc(func(e *core.RecordRequestEvent) error {
			err := e.Next()
			if err == nil {
				userID, userEmail := actorInfo(e.Auth)
				audit.Write(app, audit.Entry{
					UserID: userID, UserEmail: userEmail,
					Action: "user.update", ResourceType: "user",
					ResourceID: e.Record.Id, ResourceName: e.Record.GetString("email"),
					Status:    audit.StatusSuccess,
					IP:        e.RealIP(),
					UserAgent: e.Request.Header.Get("User-Agent"),
				})
			}
			return err
		})

		app.OnRecordDeleteRequest(col).BindFunc(func(e *core.RecordRequestEvent) error {
			recordID := e.Record.Id
			recordEmail := e.Record.GetString("email")
			ip := e.RealIP()
			ua := e.Request.Header.Get("User-Agent")
			err := e.Next()
			if err == nil {
				userID, userEmail := actorInfo(e.Auth)
				audit.Write(app, audit.Entry{
					UserID: userID, UserEmail: userEmail,
					Action: "user.delete", ResourceType: "user",
					ResourceID: recordID, ResourceName: recordEmail,
					Status:    audit.StatusSuccess,
					IP:        ip,
					UserAgent: ua,
				})
			}
			return err
		})
	}
}

// registerLoginAuditHooks writes audit records on login success and failure
// for both the "users" and "_superusers" collections. These hooks only cover
// the PocketBase REST/admin login surface; SSH publickey auth attempts are
// not audited (cmd/conduitd audits SSH sessions once an exec request
// arrives).
func registerLoginAuditHooks(app *pocketbase.PocketBase) {
	for _, col := range []string{"users", "_superusers"} {
		col := col // capture loop variable

		app.OnRecordAuthWithPasswordRequest(col).BindFunc(func(e *core.RecordAuthWithPasswordRequestEvent) error {
			ip := e.RealIP()
			ua := e.Request.Header.Get("User-Agent")
			err := e.Next()
			if err != nil {
				audit.Write(app, audit.Entry{
					UserID: "unknown", UserEmail: e.Identity,
					Action: "login.failed", ResourceType: "session",
					Status:    audit.StatusFailed,
					IP:        ip,
					UserAgent: ua,
					Detail: map[string]any{
						"reason":     err.Error(),
						"collection": col,
					},
				})
				return err
			}
			audit.Write(app, audit.Entry{
				UserID: e.Record.Id, UserEmail: e.Record.GetString("email"),
				Action: "login.success", ResourceType: "session",
				Status:    audit.StatusSuccess,
				IP:        ip,
				UserAgent: ua,
			})
			return nil
		})
	}
}

// registerSSHKeyAuditHooks writes audit records when an authorized key is
// registered or revoked through the REST API, so key provisioning shows up
// in the same trail as SSH sessions.
func registerSSHKeyAuditHooks(app *pocketbase.PocketBase) {
	app.OnRecordCreateRequest("ssh_keys").BindFunc(func(e *core.RecordRequestEvent) error {
		err := e.Next()
		if err == nil {
			userID, userEmail := "system", ""
			if e.Auth != nil {
				userID, userEmail = e.Auth.Id, e.Auth.GetString("email")
			}
			audit.Write(app, audit.Entry{
				UserID: userID, UserEmail: userEmail,
				Action: "sshkey.create", ResourceType: "ssh_key",
				ResourceID: e.Record.Id, ResourceName: e.Record.GetString("owner_user"),
				Status:    audit.StatusSuccess,
				IP:        e.RealIP(),
				UserAgent: e.Request.Header.Get("User-Agent"),
			})
		}
		return err
	})

	app.OnRecordDeleteRequest("ssh_keys").BindFunc(func(e *core.RecordRequestEvent) error {
		recordID := e.Record.Id
		owner := e.Record.GetString("owner_user")
		ip := e.RealIP()
		ua := e.Request.Header.Get("User-Agent")
		err := e.Next()
		if err == nil {
			userID, userEmail := "system", ""
			if e.Auth != nil {
				userID, userEmail = e.Auth.Id, e.Auth.GetString("email")
			}
			audit.Write(app, audit.Entry{
				UserID: userID, UserEmail: userEmail,
				Action: "sshkey.delete", ResourceType: "ssh_key",
				ResourceID: recordID, ResourceName: owner,
				Status:    audit.StatusSuccess,
				IP:        ip,
				UserAgent: ua,
			})
		}
		return err
	})
}

// registerSuperuserHooks registers safety guards for the _superusers system
// collection.
func registerSuperuserHooks(app *pocketbase.PocketBase) {
	app.OnRecordDeleteRequest("_superusers").BindFunc(func(e *core.RecordRequestEvent) error {
		if e.Auth != nil && e.Auth.Id == e.Record.Id {
			return apis.NewBadRequestError("cannot_delete_self", nil)
		}

		count, err := app.CountRecords("_superusers")
		if err != nil {
			return fmt.Errorf("superuser guard: failed to count superusers: %w", err)
		}
		if count <= 1 {
			return apis.NewBadRequestError("cannot_delete_last_superuser", nil)
		}

		return e.Next()
	})
}

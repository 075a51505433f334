// Package accounts implements the user_id_by_username contract against
// PocketBase's built-in "users" auth collection.
package accounts

import (
	"context"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// Store implements lfsauth.AccountLookup.
type Store struct {
	App core.App
}

// UserIDByUsername resolves a username to its PocketBase record id. ok is
// false whenever the lookup fails — missing user and DB error are
// indistinguishable here, matching internal/settings.GetGroup's "any error
// means treat as absent" convention.
func (s *Store) UserIDByUsername(_ context.Context, username string) (string, bool, error) {
	rec, err := s.App.FindFirstRecordByFilter(
		"users",
		"username = {:username}",
		dbx.Params{"username": username},
	)
	if err != nil {
		return "", false, nil
	}
	return rec.Id, true, nil
}

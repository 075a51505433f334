// Package keystore implements the SSH transport's authorized-key lookup
// contract against PocketBase's ssh_keys collection, iterating matching
// records via app.FindRecordsByFilter.
package keystore

import (
	"context"
	"fmt"

	"github.com/pocketbase/pocketbase/core"

	"github.com/conduit-vcs/conduit/internal/sshd"
)

// Store implements sshd.KeyLookup against the ssh_keys collection.
type Store struct {
	App core.App
}

// ListAuthorizedKeys returns every stored key (Add does not check the key
// type; the publickey callback only accepts Ed25519 keys), encoded
// the same way sshd's publickey callback canonicalizes an incoming key
// (see sshd.EncodeKeyBlob), paired with the owning account's username.
func (s *Store) ListAuthorizedKeys(_ context.Context) ([]sshd.AuthorizedKey, error) {
	records, err := s.App.FindRecordsByFilter("ssh_keys", "", "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("keystore: list ssh_keys: %w", err)
	}

	out := make([]sshd.AuthorizedKey, 0, len(records))
	for _, rec := range records {
		ownerID := rec.GetString("owner_user")
		owner, err := s.App.FindRecordById("users", ownerID)
		if err != nil {
			continue // orphaned key row; skip rather than fail the whole snapshot
		}
		out = append(out, sshd.AuthorizedKey{
			Owner:      owner.GetString("username"),
			EncodedKey: rec.GetString("encoded_key"),
		})
	}
	return out, nil
}

// Add stores a new authorized key for ownerUserID. rawKeyBlob is the raw
// SSH wire-format public key bytes (ssh.PublicKey.Marshal()).
func (s *Store) Add(ownerUserID string, rawKeyBlob []byte) error {
	col, err := s.App.FindCollectionByNameOrId("ssh_keys")
	if err != nil {
		return fmt.Errorf("keystore: find collection: %w", err)
	}
	rec := core.NewRecord(col)
	rec.Set("owner_user", ownerUserID)
	rec.Set("encoded_key", sshd.EncodeKeyBlob(rawKeyBlob))
	if err := s.App.Save(rec); err != nil {
		return fmt.Errorf("keystore: save: %w", err)
	}
	return nil
}

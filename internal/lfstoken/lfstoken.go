// Package lfstoken implements the mint_lfs_token contract: issuing
// short-lived bearer tokens that Git LFS clients present to the HTTP batch
// API after the SSH-side lfs-authenticate handshake.
//
// Tokens are fixed-width random strings produced with crypto/rand and
// encoded as URL-safe base64 without padding.
package lfstoken

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/pocketbase/pocketbase/core"
)

var tokenEncoding = base64.URLEncoding.WithPadding(base64.NoPadding)

// Store implements lfsauth.TokenMinter against the lfs_tokens collection.
type Store struct {
	App core.App
}

// MintLFSToken generates a random bearer token, persists it with an
// absolute expiry of now+ttl, and returns it alongside the ttl that was
// actually granted.
func (s *Store) MintLFSToken(_ context.Context, userID string, ttl time.Duration) (string, time.Duration, error) {
	col, err := s.App.FindCollectionByNameOrId("lfs_tokens")
	if err != nil {
		return "", 0, fmt.Errorf("lfstoken: find collection: %w", err)
	}

	token, err := generate()
	if err != nil {
		return "", 0, fmt.Errorf("lfstoken: generate: %w", err)
	}

	rec := core.NewRecord(col)
	rec.Set("user_id", userID)
	rec.Set("token", token)
	rec.Set("expires", time.Now().UTC().Add(ttl))
	if err := s.App.Save(rec); err != nil {
		return "", 0, fmt.Errorf("lfstoken: save: %w", err)
	}

	return token, ttl, nil
}

// generate returns a cryptographically random, URL-safe bearer token: 32
// bytes (256 bits) of entropy, base64url-no-pad encoded (43 characters).
func generate() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return tokenEncoding.EncodeToString(b), nil
}

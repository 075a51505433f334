// Package lfsauth implements the git-lfs-authenticate pseudo-command: it
// mints a short-lived bearer token and returns the JSON blob a Git-LFS
// client needs to talk to the (external) LFS object-storage HTTP endpoints.
package lfsauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/conduit-vcs/conduit/internal/gitproto"
	"github.com/conduit-vcs/conduit/internal/sshd"
)

// TokenTTL is the default lifetime of a minted LFS bearer token, used when
// Handler.TTL is left at its zero value.
const TokenTTL = 24 * time.Hour

// AccountLookup resolves a username to the account's persistent id.
type AccountLookup interface {
	UserIDByUsername(ctx context.Context, username string) (string, bool, error)
}

// TokenMinter is the external LFS token store: mint_lfs_token(user_id, ttl).
type TokenMinter interface {
	MintLFSToken(ctx context.Context, userID string, ttl time.Duration) (token string, expiresIn time.Duration, err error)
}

// Handler answers git-lfs-authenticate exec requests.
type Handler struct {
	Accounts  AccountLookup
	Tokens    TokenMinter
	PublicURL string // e.g. "https://git.example.com"
	// TTL overrides TokenTTL when set (see the "lfs"/"token" app_settings
	// group, read once at startup in cmd/conduitd).
	TTL time.Duration
}

func (h *Handler) ttl() time.Duration {
	if h.TTL > 0 {
		return h.TTL
	}
	return TokenTTL
}

// response is the exact wire shape of the LFS token response.
type response struct {
	Href      string            `json:"href"`
	Header    map[string]string `json:"header"`
	ExpiresIn int64             `json:"expires_in"`
}

// Handle runs the full git-lfs-authenticate procedure against one already-accepted
// channel: authentication check, ownership check, user lookup, token mint,
// and the JSON response — all delivered through the shared immediate
// response loop.
func (h *Handler) Handle(ctx context.Context, ch *sshd.Channel, authenticatedUser string, cmd gitproto.LfsAuthCommand) error {
	if authenticatedUser == "" {
		return sshd.RespondAndClose(ch, nil, []byte("authentication failed\n"), 1)
	}
	if cmd.User != authenticatedUser {
		return sshd.RespondAndClose(ch, nil, []byte("repository access denied\n"), 1)
	}

	userID, ok, err := h.Accounts.UserIDByUsername(ctx, cmd.User)
	if err != nil || !ok {
		return sshd.RespondAndClose(ch, nil, []byte("user not found\n"), 1)
	}

	token, expiresIn, err := h.Tokens.MintLFSToken(ctx, userID, h.ttl())
	if err != nil {
		log.Printf("lfsauth: mint token for %s: %v", cmd.User, err)
		return sshd.RespondAndClose(ch, nil, []byte("internal error\n"), 1)
	}

	resp := response{
		Href:      fmt.Sprintf("%s/~%s/%s/info/lfs", h.PublicURL, cmd.User, cmd.Repo),
		Header:    map[string]string{"Authorization": "RemoteAuth " + token},
		ExpiresIn: int64(expiresIn.Seconds()),
	}
	body, err := json.Marshal(resp)
	if err != nil {
		log.Printf("lfsauth: marshal response for %s: %v", cmd.User, err)
		return sshd.RespondAndClose(ch, nil, []byte("internal error\n"), 1)
	}
	body = append(body, '\n')

	return sshd.RespondAndClose(ch, body, nil, 0)
}

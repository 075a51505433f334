// Command conduitd runs the Conduit SSH Git transport alongside its
// PocketBase-backed account store and Asynq maintenance worker.
package main

import (
	"context"
	"log"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"

	"github.com/conduit-vcs/conduit/internal/accounts"
	"github.com/conduit-vcs/conduit/internal/audit"
	"github.com/conduit-vcs/conduit/internal/config"
	"github.com/conduit-vcs/conduit/internal/gitproto"
	"github.com/conduit-vcs/conduit/internal/gitproxy"
	"github.com/conduit-vcs/conduit/internal/hooks"
	"github.com/conduit-vcs/conduit/internal/keystore"
	"github.com/conduit-vcs/conduit/internal/lfsauth"
	"github.com/conduit-vcs/conduit/internal/lfstoken"
	"github.com/conduit-vcs/conduit/internal/settings"
	"github.com/conduit-vcs/conduit/internal/sshd"
	"github.com/conduit-vcs/conduit/internal/worker"

	// Register custom PocketBase migrations.
	_ "github.com/conduit-vcs/conduit/internal/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app := pocketbase.New()

	w := worker.New(app)
	hooks.Register(app)

	var cancelSSH context.CancelFunc

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		w.Start()

		ctx, cancel := context.WithCancel(context.Background())
		cancelSSH = cancel

		ln, err := sshd.NewListener(sshd.Config{
			ListenAddr:  cfg.ListenAddr,
			HostKeyPath: cfg.HostKeyPath,
		}, &keystore.Store{App: app})
		if err != nil {
			return err
		}

		lfsGroup, _ := settings.GetGroup(app, "lfs", "token", map[string]any{"ttlSeconds": 86400})
		tokenTTL := time.Duration(settings.Int(lfsGroup, "ttlSeconds", 86400)) * time.Second

		handler := &sessionHandler{
			app:       app,
			accounts:  &accounts.Store{App: app},
			tokens:    &lfstoken.Store{App: app},
			publicURL: cfg.PublicURL,
			repoRoot:  cfg.RepoRoot,
			tokenTTL:  tokenTTL,
		}

		go runListener(ctx, ln, handler)

		log.Printf("conduitd: ssh transport listening on %s", ln.Addr())
		return se.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		if cancelSSH != nil {
			cancelSSH()
		}
		w.Shutdown()
		return e.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}

// runListener drives the SSH accept loop until ctx is cancelled, dispatching
// every accepted session to handler in its own goroutine.
func runListener(ctx context.Context, ln *sshd.Listener, handler *sessionHandler) {
	for {
		sess, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("conduitd: accept: %v", err)
			continue
		}
		go handler.handle(ctx, sess)
	}
}

// sessionHandler wires one accepted SSH session to the LFS-auth handler or
// the Git proxy, depending on what the client's exec request asks for.
type sessionHandler struct {
	app       core.App
	accounts  *accounts.Store
	tokens    *lfstoken.Store
	publicURL string
	repoRoot  string
	tokenTTL  time.Duration
}

func (h *sessionHandler) handle(ctx context.Context, sess *sshd.Session) {
	defer sess.Close()
	sess.DiscardGlobalRequests()

	ch, err := sess.AcceptChannel(ctx)
	if err != nil {
		return
	}
	sess.RejectExtraChannels()

	user := sess.User()
	cmdStr, ok := waitForExec(ch)
	if !ok {
		_ = ch.Close()
		return
	}

	cmd, err := gitproto.Parse(cmdStr)
	if err != nil {
		audit.Write(h.app, audit.Entry{
			UserID: userOrUnknown(user), Action: audit.ActionSSHSessionError,
			ResourceType: "ssh_command", Status: audit.StatusFailed,
			IP: sess.RemoteAddr(), Detail: map[string]any{"command": cmdStr, "error": err.Error()},
		})
		_ = sshd.RespondAndClose(ch, nil, []byte(err.Error()+"\n"), 1)
		return
	}

	switch c := cmd.(type) {
	case gitproto.LfsAuthCommand:
		handler := &lfsauth.Handler{Accounts: h.accounts, Tokens: h.tokens, PublicURL: h.publicURL, TTL: h.tokenTTL}
		if err := handler.Handle(ctx, ch, user, c); err != nil {
			log.Printf("conduitd: lfs-auth: %v", err)
		}
		audit.Write(h.app, audit.Entry{
			UserID: userOrUnknown(user), Action: audit.ActionSSHSessionLFS,
			ResourceType: "repo", ResourceName: c.User + "/" + c.Repo,
			Status: audit.StatusSuccess, IP: sess.RemoteAddr(),
		})
	case gitproto.GitCommand:
		audit.Write(h.app, audit.Entry{
			UserID: userOrUnknown(user), Action: audit.ActionSSHSessionGit,
			ResourceType: "repo", ResourceName: c.User + "/" + c.Repo,
			Status: audit.StatusSuccess, IP: sess.RemoteAddr(),
		})
		if err := gitproxy.Run(ctx, ch, h.repoRoot, c); err != nil {
			log.Printf("conduitd: git proxy: %v", err)
		}
	}
}

// waitForExec drains ch's event stream until the single ExecRequestEvent
// arrives, discarding anything preceding it (a client may not send data
// before its exec request, but nothing here depends on that).
func waitForExec(ch *sshd.Channel) (string, bool) {
	for ev := range ch.Events() {
		if exec, ok := ev.(sshd.ExecRequestEvent); ok {
			return exec.Command, true
		}
	}
	return "", false
}

func userOrUnknown(user string) string {
	if user == "" {
		return "unknown"
	}
	return user
}

// Package sshd implements the Conduit SSH Git transport's listener, session
// driver, and channel driver on top of golang.org/x/crypto/ssh — a pure-Go
// SSH implementation, which is why this package carries none of the native
// handle/callback-pinning machinery a C-library binding would need; the
// listener/session/channel split below plays that architectural role
// without any unsafe pointer work.
package sshd

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
)

// AuthorizedKey is one row of the authorized-key snapshot a KeyLookup
// returns: the canonical base64 key blob (no type prefix, no comment) and
// the username that owns it.
type AuthorizedKey struct {
	Owner      string
	EncodedKey string
}

// KeyLookup is the external collaborator that lists every account's
// authorized Ed25519 public keys. The listener calls ListAuthorizedKeys on
// every publickey attempt; the result is not cached per connection.
type KeyLookup interface {
	ListAuthorizedKeys(ctx context.Context) ([]AuthorizedKey, error)
}

// Config carries the listener's own settings; it intentionally knows
// nothing about PocketBase or any other persistence detail.
type Config struct {
	ListenAddr  string
	HostKeyPath string
}

// Listener accepts SSH connections and drives the publickey handshake.
type Listener struct {
	ln     net.Listener
	sshCfg *ssh.ServerConfig
	keys   KeyLookup
}

// NewListener binds cfg.ListenAddr and loads (or generates and persists) the
// Ed25519 host key at cfg.HostKeyPath.
func NewListener(cfg Config, keys KeyLookup) (*Listener, error) {
	signer, err := loadOrGenerateHostKey(cfg.HostKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sshd: host key: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("sshd: listen %s: %w", cfg.ListenAddr, err)
	}

	l := &Listener{ln: ln, keys: keys}
	l.sshCfg = &ssh.ServerConfig{
		ServerVersion:     "SSH-2.0-conduit",
		PublicKeyCallback: l.publicKeyCallback,
	}
	l.sshCfg.AddHostKey(signer)
	return l, nil
}

// Addr returns the bound listen address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept blocks until a new connection completes its SSH handshake
// (including the publickey callback) or ctx is cancelled. Handshake errors
// for a single connection are returned to the caller, not fatal to the
// listener — matching the transport's "errors during accept are surfaced,
// not fatal" rule.
func (l *Listener) Accept(ctx context.Context) (*Session, error) {
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	resCh := make(chan acceptResult, 1)
	go func() {
		conn, err := l.ln.Accept()
		resCh <- acceptResult{conn, err}
	}()

	var res acceptResult
	select {
	case <-ctx.Done():
		_ = l.ln.Close()
		return nil, ctx.Err()
	case res = <-resCh:
	}
	if res.err != nil {
		return nil, res.err
	}

	sc, chans, reqs, err := ssh.NewServerConn(res.conn, l.sshCfg)
	if err != nil {
		_ = res.conn.Close()
		return nil, fmt.Errorf("sshd: handshake: %w", err)
	}
	return newSession(sc, chans, reqs), nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

func (l *Listener) publicKeyCallback(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
	if conn.User() != "git" {
		return nil, fmt.Errorf("ssh: unsupported user %q", conn.User())
	}
	if key.Type() != ssh.KeyAlgoED25519 {
		return nil, fmt.Errorf("ssh: unsupported key type %q", key.Type())
	}

	encoded := canonicalizeKey(key)
	authorized, err := l.keys.ListAuthorizedKeys(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ssh: authorized key lookup: %w", err)
	}
	for _, ak := range authorized {
		if ak.EncodedKey == encoded {
			return &ssh.Permissions{
				Extensions: map[string]string{"owner": ak.Owner},
			}, nil
		}
	}
	return nil, fmt.Errorf("ssh: denied")
}

// canonicalizeKey returns the canonical wire-blob encoding of key (no type
// string, no comment) — the same form stored by the key store.
func canonicalizeKey(key ssh.PublicKey) string {
	return EncodeKeyBlob(key.Marshal())
}

// EncodeKeyBlob is the canonical string encoding of a raw SSH public-key
// wire blob, shared by the publickey callback and internal/keystore so both
// sides agree on the same representation.
func EncodeKeyBlob(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// loadOrGenerateHostKey reads the Ed25519 host key PEM at path, generating
// and persisting a fresh one if the file does not exist.
func loadOrGenerateHostKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read host key %s: %w", path, err)
	}
	if err == nil {
		if b, _ := pem.Decode(data); b == nil {
			return nil, fmt.Errorf("sshd: host key file %s contains no PEM block", path)
		}
		key, err := ssh.ParseRawPrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("sshd: parse host key: %w", err)
		}
		switch key.(type) {
		case ed25519.PrivateKey, *ed25519.PrivateKey:
		default:
			return nil, fmt.Errorf("sshd: host key %s is not an Ed25519 key", path)
		}
		return ssh.NewSignerFromKey(key)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("sshd: generate host key: %w", err)
	}
	pemBytes, err := encodeEd25519PEM(priv)
	if err != nil {
		return nil, fmt.Errorf("sshd: encode host key: %w", err)
	}
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		log.Printf("sshd: failed to persist generated host key at %s: %v", path, err)
	} else {
		log.Printf("sshd: generated new host key at %s", path)
	}
	return ssh.NewSignerFromKey(priv)
}

// encodeEd25519PEM marshals an Ed25519 private key to OpenSSH PEM format.
func encodeEd25519PEM(priv ed25519.PrivateKey) ([]byte, error) {
	key, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(key), nil
}

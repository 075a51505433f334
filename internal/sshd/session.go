package sshd

import (
	"context"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Session drives one authenticated SSH connection: at most one "session"
// channel may be opened on it; every subsequent channel-open is rejected.
// Global requests are discarded — nothing in this transport needs
// keepalive or forwarding requests.
type Session struct {
	conn    *ssh.ServerConn
	chans   <-chan ssh.NewChannel
	reqs    <-chan *ssh.Request
	channel bool // whether a channel has already been accepted
}

func newSession(conn *ssh.ServerConn, chans <-chan ssh.NewChannel, reqs <-chan *ssh.Request) *Session {
	return &Session{conn: conn, chans: chans, reqs: reqs}
}

// User returns the account username bound by the successful public-key
// callback (stashed in ssh.Permissions.Extensions — the idiomatic
// callback→driver channel x/crypto/ssh provides in place of a manually
// threaded "authenticated user" field).
func (s *Session) User() string {
	if s.conn.Permissions != nil {
		return s.conn.Permissions.Extensions["owner"]
	}
	return ""
}

// RemoteAddr returns the peer address, for audit logging.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// DiscardGlobalRequests drains and rejects every global request on this
// connection in the background — nothing in this transport's contract
// answers them.
func (s *Session) DiscardGlobalRequests() {
	go ssh.DiscardRequests(s.reqs)
}

// AcceptChannel waits for the first "session" channel-open request,
// accepts it, and returns the wrapped Channel driver. Every subsequent
// channel-open on this connection (of any type) is rejected with
// ssh.Prohibited. Returns an error if ctx is cancelled or the channel
// stream closes (connection gone) before one arrives.
func (s *Session) AcceptChannel(ctx context.Context) (*Channel, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case newChan, ok := <-s.chans:
			if !ok {
				return nil, fmt.Errorf("sshd: connection closed before a channel was opened")
			}
			if s.channel || newChan.ChannelType() != "session" {
				_ = newChan.Reject(ssh.Prohibited, "at most one session channel per connection")
				continue
			}
			s.channel = true
			ch, reqs, err := newChan.Accept()
			if err != nil {
				return nil, fmt.Errorf("sshd: accept channel: %w", err)
			}
			return newChannel(ch, reqs), nil
		}
	}
}

// RejectExtraChannels drains and rejects every further channel-open request
// on this connection — called once the single session channel has been
// accepted, so
// a client that races a second channel-open gets a clean rejection instead
// of hanging.
func (s *Session) RejectExtraChannels() {
	go func() {
		for newChan := range s.chans {
			_ = newChan.Reject(ssh.Prohibited, "at most one session channel per connection")
		}
	}()
}

// Close closes the underlying connection.
func (s *Session) Close() error { return s.conn.Close() }

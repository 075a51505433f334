// Package gitproxy spawns git-upload-pack/git-receive-pack and mediates
// bytes and lifecycle between the SSH channel and the child process. When
// shutdown is signalled or the channel's event stream ends, the child gets
// GraceTimeout to exit before it is killed.
package gitproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conduit-vcs/conduit/internal/gitproto"
	"github.com/conduit-vcs/conduit/internal/ringbuf"
	"github.com/conduit-vcs/conduit/internal/sshd"
)

// GraceTimeout is how long the proxy waits for a clean child exit after
// shutdown is signalled before force-closing the channel and killing the
// child process.
const GraceTimeout = 10 * time.Second

const ringCapacity = 64 * 1024

// Run spawns cmd.Bin under repoRoot/user/repo and pumps bytes between the
// child's stdio and ch until the session ends, honoring ctx for shutdown.
// It never panics on spawn failure — that path reports through the
// immediate-response loop instead.
func Run(ctx context.Context, ch *sshd.Channel, repoRoot string, cmd gitproto.GitCommand) error {
	repoDir, err := resolveRepoPath(repoRoot, cmd.User, cmd.Repo)
	if err != nil {
		return sshd.RespondAndClose(ch, nil, []byte(fmt.Sprintf("invalid repository path: %v\n", err)), 1)
	}

	helperPath, err := exec.LookPath(cmd.Bin)
	if err != nil {
		return sshd.RespondAndClose(ch, nil, []byte(fmt.Sprintf("helper not found: %v\n", err)), 1)
	}

	child := exec.Command(helperPath, repoDir)
	stdin, err := child.StdinPipe()
	if err != nil {
		return sshd.RespondAndClose(ch, nil, []byte(fmt.Sprintf("spawn failed: %v\n", err)), 1)
	}
	stdout, err := child.StdoutPipe()
	if err != nil {
		return sshd.RespondAndClose(ch, nil, []byte(fmt.Sprintf("spawn failed: %v\n", err)), 1)
	}
	stderr, err := child.StderrPipe()
	if err != nil {
		return sshd.RespondAndClose(ch, nil, []byte(fmt.Sprintf("spawn failed: %v\n", err)), 1)
	}
	if err := child.Start(); err != nil {
		return sshd.RespondAndClose(ch, nil, []byte(fmt.Sprintf("spawn failed: %v\n", err)), 1)
	}

	p := &proxy{
		ch:     ch,
		child:  child,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		outBuf: ringbuf.New(ringCapacity),
		errBuf: ringbuf.New(ringCapacity),
		wake:   make(chan struct{}, 1),
	}
	p.cond = sync.NewCond(&p.mu)
	return p.run(ctx)
}

// resolveRepoPath mirrors repocraft's ensureWithinRoot path-traversal
// guard, specialized to the fixed <root>/<user>/<repo> layout this
// transport's config contract names.
func resolveRepoPath(root, user, repo string) (string, error) {
	if strings.ContainsAny(user, "/\\") || strings.ContainsAny(repo, "/\\") {
		return "", errors.New("path traversal detected")
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	full := filepath.Join(rootAbs, user, repo)
	if !strings.HasPrefix(full, rootAbs+string(filepath.Separator)) {
		return "", errors.New("path traversal detected")
	}
	return full, nil
}

type proxy struct {
	ch    *sshd.Channel
	child *exec.Cmd

	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	mu         sync.Mutex
	cond       *sync.Cond // guards outBuf/errBuf emptiness; broadcast on every change
	outBuf     *ringbuf.Buffer
	errBuf     *ringbuf.Buffer
	stdoutDone bool
	stderrDone bool
	stdinDone  bool

	wake chan struct{} // signalled whenever a ring buffer gained data or drained

	eofSent bool // guards against sending SendEOF more than once

	exitErr  error
	exitDone chan struct{}
}

func (p *proxy) run(ctx context.Context) error {
	p.exitDone = make(chan struct{})

	go p.pumpStdoutIn()
	go p.pumpStderrIn()
	go func() {
		p.exitErr = p.child.Wait()
		close(p.exitDone)
	}()

	childExited := false
	for {
		select {
		case <-ctx.Done():
			return p.shutdown()
		case ev, ok := <-p.ch.Events():
			if !ok {
				return p.shutdown()
			}
			p.handleEvent(ev)
		case <-p.wake:
		case <-p.exitDone:
			childExited = true
		}

		p.drainToChannel()

		if !p.eofSent && p.stdoutFullyDrained() {
			for !p.ch.Drained() {
				<-p.ch.FlushSignal()
			}
			if err := p.ch.SendEOF(); err != nil {
				return err
			}
			p.eofSent = true
		}

		if childExited && p.buffersEmpty() {
			for !p.ch.Drained() {
				<-p.ch.FlushSignal()
			}
			code := exitCode(p.exitErr)
			if err := p.ch.SendExitStatus(code); err != nil {
				return err
			}
			return p.ch.Close()
		}
	}
}

func (p *proxy) handleEvent(ev sshd.Event) {
	switch e := ev.(type) {
	case sshd.DataEvent:
		if !p.stdinDone {
			if _, err := p.stdin.Write(e.Bytes); err != nil {
				p.closeStdin()
			}
		}
	case sshd.EOFEvent:
		p.closeStdin()
	case sshd.ProtocolViolationEvent:
		_ = p.child.Process.Kill()
	case sshd.ExecRequestEvent:
		// A second exec request on the same channel is ignored — at most
		// one is ever meaningful.
	}
}

func (p *proxy) closeStdin() {
	if !p.stdinDone {
		p.stdinDone = true
		_ = p.stdin.Close()
	}
}

// pumpStdoutIn reads the child's stdout into the ring buffer only when it
// is empty, matching the "refilled only when empty" backpressure rule —
// the ring buffer being fixed-size and refilled lazily is what makes the
// child's own pipe back-pressure throttle it when the SSH channel can't
// accept more bytes.
func (p *proxy) pumpStdoutIn() {
	buf := make([]byte, 32*1024)
	for {
		p.mu.Lock()
		for !p.outBuf.Empty() {
			p.cond.Wait()
		}
		p.mu.Unlock()

		n, err := p.stdout.Read(buf)
		if n > 0 {
			p.mu.Lock()
			p.outBuf.Write(buf[:n])
			p.cond.Broadcast()
			p.mu.Unlock()
			p.signal()
		}
		if err != nil {
			p.mu.Lock()
			p.stdoutDone = true
			p.mu.Unlock()
			p.signal()
			return
		}
	}
}

func (p *proxy) pumpStderrIn() {
	buf := make([]byte, 32*1024)
	for {
		p.mu.Lock()
		for !p.errBuf.Empty() {
			p.cond.Wait()
		}
		p.mu.Unlock()

		n, err := p.stderr.Read(buf)
		if n > 0 {
			p.mu.Lock()
			p.errBuf.Write(buf[:n])
			p.cond.Broadcast()
			p.mu.Unlock()
			p.signal()
		}
		if err != nil {
			p.mu.Lock()
			p.stderrDone = true
			p.mu.Unlock()
			p.signal()
			return
		}
	}
}

func (p *proxy) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// drainToChannel flushes both ring buffers into the channel's write window
// while it has room, advancing read cursors by the accepted count; a
// WouldBlock leaves the remainder intact for the next wakeup.
func (p *proxy) drainToChannel() {
	for {
		p.mu.Lock()
		out := p.outBuf.ReadableSlice()
		p.mu.Unlock()
		if len(out) == 0 {
			break
		}
		n, err := p.ch.Write(out)
		if n > 0 {
			p.mu.Lock()
			p.outBuf.AdvanceRead(n)
			p.cond.Broadcast()
			p.mu.Unlock()
		}
		if err != nil {
			break
		}
	}
	for {
		p.mu.Lock()
		errs := p.errBuf.ReadableSlice()
		p.mu.Unlock()
		if len(errs) == 0 {
			break
		}
		n, err := p.ch.WriteStderr(errs)
		if n > 0 {
			p.mu.Lock()
			p.errBuf.AdvanceRead(n)
			p.cond.Broadcast()
			p.mu.Unlock()
		}
		if err != nil {
			break
		}
	}
}

func (p *proxy) buffersEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outBuf.Empty() && p.errBuf.Empty() && p.stdoutDone && p.stderrDone
}

// stdoutFullyDrained reports whether the child's stdout has hit EOF and
// every byte it produced has been moved out of the proxy's own ring
// buffer — the precondition for sending EOF on the channel.
func (p *proxy) stdoutFullyDrained() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdoutDone && p.outBuf.Empty()
}

// shutdown is invoked when the process-wide cancellation context fires or
// the channel's event stream closes. It gives the child GraceTimeout to exit
// cleanly (flushing any remaining buffered output first), kills the child
// process if it is still running, then closes the channel.
func (p *proxy) shutdown() error {
	p.drainToChannel()
	select {
	case <-p.exitDone:
	case <-time.After(GraceTimeout):
		_ = p.child.Process.Kill()
		<-p.exitDone
	}
	p.drainToChannel()
	for !p.ch.Drained() {
		<-p.ch.FlushSignal()
	}
	if !p.eofSent {
		_ = p.ch.SendEOF()
		p.eofSent = true
	}
	code := exitCode(p.exitErr)
	_ = p.ch.SendExitStatus(code)
	return p.ch.Close()
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

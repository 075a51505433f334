package sshd

import (
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/conduit-vcs/conduit/internal/ringbuf"
)

// ErrWouldBlock is returned by Channel.Write when the shared write window
// is exhausted. Callers must retry once FlushSignal reports that the writer
// goroutine has drained more of it — there is no secondary queue behind the
// ring buffer.
var ErrWouldBlock = errors.New("sshd: write would block")

// Event is one item from a Channel's event stream: a DataEvent, EOFEvent,
// ExecRequestEvent, or ProtocolViolationEvent.
type Event interface{ isEvent() }

// DataEvent carries bytes the client wrote to its session channel (stdin).
type DataEvent struct{ Bytes []byte }

func (DataEvent) isEvent() {}

// EOFEvent signals the client half-closed its write side (end of stdin).
type EOFEvent struct{}

func (EOFEvent) isEvent() {}

// ExecRequestEvent carries the raw command string of an "exec" channel
// request. At most one is ever emitted per channel.
type ExecRequestEvent struct{ Command string }

func (ExecRequestEvent) isEvent() {}

// ProtocolViolationEvent is emitted when the client behaves outside the
// narrow contract this transport expects — currently: writing to the
// channel's extended-data (stderr) stream, which legitimate Git/LFS
// clients never do on a session channel. The proxy aborts on receipt.
type ProtocolViolationEvent struct{ Reason string }

func (ProtocolViolationEvent) isEvent() {}

// Channel wraps one accepted ssh.Channel with a bounded local write window,
// modeled as free capacity in a pair of ring buffers (stdout, stderr)
// sharing one capacity counter — the Go translation of the native
// "write_window" field described by the transport's design notes. The real
// SSH-level flow control still happens one layer down, inside the blocking
// writes issued by the dedicated drain goroutine.
type Channel struct {
	ch       ssh.Channel
	capacity int

	mu      sync.Mutex
	stdout  *ringbuf.Buffer
	stderr  *ringbuf.Buffer
	drain   chan struct{} // signalled whenever new data is enqueued
	flushed chan struct{} // signalled after every flush pass; lets callers wait without polling

	events chan Event

	closeOnce sync.Once
	closed    chan struct{}
}

// windowCapacity is the shared stdout+stderr write-window size.
const windowCapacity = 32 * 1024

func newChannel(ch ssh.Channel, reqs <-chan *ssh.Request) *Channel {
	c := &Channel{
		ch:       ch,
		capacity: windowCapacity,
		stdout:   ringbuf.New(windowCapacity),
		stderr:   ringbuf.New(windowCapacity),
		drain:    make(chan struct{}, 1),
		flushed:  make(chan struct{}, 1),
		events:   make(chan Event, 32),
		closed:   make(chan struct{}),
	}
	go c.pumpWriter()

	// The event stream is closed only after every producer has returned, so
	// no emit can race the close.
	var producers sync.WaitGroup
	producers.Add(3)
	go func() { defer producers.Done(); c.pumpStdin() }()
	go func() { defer producers.Done(); c.pumpStderrIn() }()
	go func() { defer producers.Done(); c.pumpRequests(reqs) }()
	go func() {
		producers.Wait()
		close(c.events)
	}()
	return c
}

// Events returns the channel's event stream. Callers should range over it
// until it is closed, which happens once the client's stdin has ended, its
// extended-data stream has ended or produced a protocol violation, and the
// channel's request stream has closed (or Close was called).
func (c *Channel) Events() <-chan Event { return c.events }

func (c *Channel) used() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stdout.Len() + c.stderr.Len()
}

// Writable reports whether the shared write window has any free capacity.
func (c *Channel) Writable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stdout.Len()+c.stderr.Len() < c.capacity
}

// Write enqueues stdout bytes for the drain goroutine to flush to the real
// SSH channel. It never blocks: if the shared window is full it writes
// nothing and returns ErrWouldBlock. Callers retry after observing more
// room (e.g. on the next event-loop wakeup).
func (c *Channel) Write(p []byte) (int, error) {
	return c.enqueue(p, false)
}

// WriteStderr is Write's counterpart for the extended-data (stderr) stream.
func (c *Channel) WriteStderr(p []byte) (int, error) {
	return c.enqueue(p, true)
}

func (c *Channel) enqueue(p []byte, stderr bool) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	c.mu.Lock()
	free := c.capacity - c.stdout.Len() - c.stderr.Len()
	if free <= 0 {
		c.mu.Unlock()
		return 0, ErrWouldBlock
	}
	chunk := p
	if len(chunk) > free {
		chunk = chunk[:free]
	}
	var n int
	if stderr {
		n = c.stderr.Write(chunk)
	} else {
		n = c.stdout.Write(chunk)
	}
	c.mu.Unlock()

	select {
	case c.drain <- struct{}{}:
	default:
	}
	if n < len(p) {
		return n, ErrWouldBlock
	}
	return n, nil
}

// pumpWriter drains the ring buffers into the real ssh.Channel, which
// enforces genuine SSH-level flow control on each blocking Write call.
func (c *Channel) pumpWriter() {
	for {
		select {
		case <-c.closed:
			return
		case <-c.drain:
		}
		for {
			c.mu.Lock()
			out := c.stdout.ReadableSlice()
			var outCopy []byte
			if len(out) > 0 {
				outCopy = append([]byte(nil), out...)
			}
			c.mu.Unlock()
			if len(outCopy) == 0 {
				break
			}
			n, err := c.ch.Write(outCopy)
			c.mu.Lock()
			c.stdout.AdvanceRead(n)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
		for {
			c.mu.Lock()
			errs := c.stderr.ReadableSlice()
			var errCopy []byte
			if len(errs) > 0 {
				errCopy = append([]byte(nil), errs...)
			}
			c.mu.Unlock()
			if len(errCopy) == 0 {
				break
			}
			n, err := c.ch.Stderr().Write(errCopy)
			c.mu.Lock()
			c.stderr.AdvanceRead(n)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
		select {
		case c.flushed <- struct{}{}:
		default:
		}
	}
}

// FlushSignal returns a channel that becomes readable after the writer
// goroutine completes a flush pass — used by callers (the immediate
// response loop) to wait for more write-window room without busy-polling.
func (c *Channel) FlushSignal() <-chan struct{} { return c.flushed }

// Drained reports whether both ring buffers have been fully flushed to the
// wire — the precondition the proxy waits on before sending EOF/exit-status.
func (c *Channel) Drained() bool {
	return c.used() == 0
}

func (c *Channel) pumpStdin() {
	buf := make([]byte, 32*1024)
	for {
		n, err := c.ch.Read(buf)
		if n > 0 {
			cp := append([]byte(nil), buf[:n]...)
			c.emit(DataEvent{Bytes: cp})
		}
		if err != nil {
			if err == io.EOF {
				c.emit(EOFEvent{})
			}
			return
		}
	}
}

// pumpStderrIn watches the channel's extended-data stream for bytes the
// client should never send on a session channel. Any data there is treated
// as a protocol violation.
func (c *Channel) pumpStderrIn() {
	buf := make([]byte, 1)
	n, err := c.ch.Stderr().Read(buf)
	if n > 0 {
		c.emit(ProtocolViolationEvent{Reason: "client wrote to extended-data stream"})
		return
	}
	_ = err
}

func (c *Channel) pumpRequests(reqs <-chan *ssh.Request) {
	execSeen := false
	for req := range reqs {
		if req.Type == "exec" && !execSeen {
			execSeen = true
			cmd := parseExecPayload(req.Payload)
			if req.WantReply {
				_ = req.Reply(true, nil)
			}
			c.emit(ExecRequestEvent{Command: cmd})
			continue
		}
		// Any other request type (pty-req, shell, env, window-change, or a
		// second exec) is outside this transport's contract.
		if req.WantReply {
			_ = req.Reply(false, nil)
		}
	}
}

// parseExecPayload decodes the SSH "exec" request payload: a single
// uint32-length-prefixed string.
func parseExecPayload(payload []byte) string {
	if len(payload) < 4 {
		return ""
	}
	n := int(payload[0])<<24 | int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
	if n < 0 || 4+n > len(payload) {
		return ""
	}
	return string(payload[4 : 4+n])
}

func (c *Channel) emit(e Event) {
	select {
	case c.events <- e:
	case <-c.closed:
	}
}

// SendEOF half-closes the channel's write side.
func (c *Channel) SendEOF() error {
	return c.ch.CloseWrite()
}

// SendExitStatus reports the spawned process's exit code to the client.
func (c *Channel) SendExitStatus(code int) error {
	payload := ssh.Marshal(struct{ Status uint32 }{uint32(code)})
	_, err := c.ch.SendRequest("exit-status", false, payload)
	return err
}

// Close tears down the channel and stops its pump goroutines.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.ch.Close()
}

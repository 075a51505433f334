package sshd

// RespondAndClose writes stdout then stderr to ch, draining the channel's
// write window as it goes (retrying on ErrWouldBlock instead of buffering a
// second queue), then sends EOF, the given exit status, and closes the
// channel. It discards any further client input — after a canned response,
// nothing the client sends is meaningful.
//
// Shared by internal/lfsauth's handler and by the command parser's
// unsupported/invalid-command error paths — both are "emit a short
// response and hang up" flows with identical draining/close discipline.
func RespondAndClose(ch *Channel, stdout, stderr []byte, exitCode int) error {
	discardClientInput(ch)

	if err := writeAll(ch, stdout, false); err != nil {
		return err
	}
	if err := writeAll(ch, stderr, true); err != nil {
		return err
	}
	for !ch.Drained() {
		<-ch.FlushSignal()
	}
	if err := ch.SendEOF(); err != nil {
		return err
	}
	if err := ch.SendExitStatus(exitCode); err != nil {
		return err
	}
	return ch.Close()
}

// writeAll retries enqueueing p until the whole payload has been accepted
// by the channel's write window.
func writeAll(ch *Channel, p []byte, stderr bool) error {
	for len(p) > 0 {
		var n int
		var err error
		if stderr {
			n, err = ch.WriteStderr(p)
		} else {
			n, err = ch.Write(p)
		}
		p = p[n:]
		if err != nil && err != ErrWouldBlock {
			return err
		}
		if len(p) > 0 {
			<-ch.FlushSignal()
		}
	}
	return nil
}

// discardClientInput drains (and ignores) events arriving on ch in the
// background, so a client that keeps writing after receiving a canned
// response never blocks the drain loop above.
func discardClientInput(ch *Channel) {
	go func() {
		for range ch.Events() {
		}
	}()
}

package session

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var errInboxEmpty = errors.New("inbox empty")

// fakeTransport answers relay commands like a well behaved relay and records
// everything in the order it happened.
type fakeTransport struct {
	mu      sync.Mutex
	inbox   [][]byte
	events  []string
	sent    [][]byte
	onSend  func(payload []byte)
	respond func(cmd string) string

	// retransmits copies of the first message queue up behind it, as a
	// sender waiting for its ack would resend them.
	retransmits int
	pending     [][]byte
	drained     int
}

func newFakeTransport(inbox ...string) *fakeTransport {
	f := &fakeTransport{respond: relayResponse}
	for _, msg := range inbox {
		f.inbox = append(f.inbox, []byte(msg))
	}
	return f
}

func relayResponse(cmd string) string {
	switch {
	case cmd == ProbeMessage:
		return cmd
	case strings.HasPrefix(cmd, "NAME "):
		return "OK Hello " + strings.TrimPrefix(cmd, "NAME ") + "\n"
	case cmd == "LIST":
		return "OK LIST = receiver/10.0.0.2:4000 sender/10.0.0.1:5000 \n"
	case strings.HasPrefix(cmd, "CONN "):
		return "OK Relaying to /" + strings.TrimPrefix(cmd, "CONN ") + "\n"
	case cmd == ".":
		return "OK Not relaying\n"
	case cmd == "QUIT":
		return "OK Bye\n"
	}
	return cmd
}

func (f *fakeTransport) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeTransport) Send(payload []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, append([]byte(nil), payload...))
	onSend := f.onSend
	f.mu.Unlock()

	f.record("send")
	if onSend != nil {
		onSend(payload)
	}
	return nil
}

func (f *fakeTransport) pop() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbox) == 0 {
		return nil, errInboxEmpty
	}
	msg := f.inbox[0]
	f.inbox = f.inbox[1:]
	return msg, nil
}

func (f *fakeTransport) Receive() ([]byte, error) {
	msg, err := f.pop()
	if err != nil {
		return nil, err
	}
	f.record("ack")
	return msg, nil
}

func (f *fakeTransport) ReceiveFirst(hook func([]byte) error) ([]byte, error) {
	msg, err := f.pop()
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	for i := 0; i < f.retransmits; i++ {
		f.pending = append(f.pending, msg)
	}
	f.mu.Unlock()
	if err := hook(msg); err != nil {
		return nil, err
	}
	f.record("ack")
	return msg, nil
}

// SendAndWait answers with a queued datagram before the relay's reply, like a
// socket would.
func (f *fakeTransport) SendAndWait(message []byte) ([]byte, error) {
	f.record(string(message))
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) > 0 {
		stale := f.pending[0]
		f.pending = f.pending[1:]
		return stale, nil
	}
	return []byte(f.respond(string(message))), nil
}

func (f *fakeTransport) DrainPending() (int, error) {
	f.record("drain")
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.pending)
	f.drained += n
	f.pending = nil
	return n, nil
}

func (f *fakeTransport) Linger(time.Duration) error {
	f.record("linger")
	return nil
}

func (f *fakeTransport) sentStrings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		out = append(out, string(s))
	}
	return out
}

func (f *fakeTransport) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/Pablu23/rdtrelay/internal/common"
)

func TestSenderFile(t *testing.T) {
	source := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(source, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	logger, _ := test.NewNullLogger()
	transport := newFakeTransport()
	sender := NewSender(transport, logger, func(o *SenderOptions) {
		o.SourceFile = source
		o.DestFile = "b.txt"
		o.ListInterval = time.Millisecond
	})

	if err := sender.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantSent := []string{
		"source_file: " + source + "\ndest_file: b.txt\ncontent_length: 5\nsender_addr: 10.0.0.1:5000",
		"hello",
		common.EOF,
	}
	if diff := cmp.Diff(wantSent, transport.sentStrings()); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}

	wantEvents := []string{
		ProbeMessage,
		"NAME sender",
		"LIST",
		"CONN 10.0.0.2:4000",
		"send", "send", "send",
		".",
		"QUIT",
	}
	if diff := cmp.Diff(wantEvents, transport.recorded()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestSenderChunksLargeFiles(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 25)
	source := filepath.Join(t.TempDir(), "big")
	if err := os.WriteFile(source, content, 0o644); err != nil {
		t.Fatal(err)
	}

	logger, _ := test.NewNullLogger()
	transport := newFakeTransport()
	sender := NewSender(transport, logger, func(o *SenderOptions) {
		o.SourceFile = source
		o.ChunkSize = 100
	})
	if err := sender.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sent := transport.sentStrings()
	chunks := sent[1 : len(sent)-1]
	if len(chunks) != 3 || len(chunks[2]) != 50 {
		t.Fatalf("chunks = %d, last %d bytes", len(chunks), len(chunks[len(chunks)-1]))
	}
	if got := strings.Join(chunks, ""); got != string(content) {
		t.Error("chunks do not reassemble to the file")
	}
}

func TestSenderMissingSourceFile(t *testing.T) {
	logger, _ := test.NewNullLogger()
	transport := newFakeTransport()
	sender := NewSender(transport, logger, func(o *SenderOptions) {
		o.SourceFile = filepath.Join(t.TempDir(), "missing")
	})

	if err := sender.Run(context.Background()); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Run() = %v, want not exist", err)
	}
	if events := transport.recorded(); len(events) != 0 {
		t.Errorf("talked to the relay anyway: %v", events)
	}
}

func TestSenderStdinLines(t *testing.T) {
	logger, _ := test.NewNullLogger()
	transport := newFakeTransport()
	sender := NewSender(transport, logger, func(o *SenderOptions) {
		o.Stdin = strings.NewReader("first\nsecond\nno newline")
	})

	if err := sender.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"source_file: stdin\ndest_file: stdout\nsender_addr: 10.0.0.1:5000",
		"first\n",
		"second\n",
		"no newline",
		common.EOF,
	}
	if diff := cmp.Diff(want, transport.sentStrings()); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestSenderInterruptEndsTransmission(t *testing.T) {
	logger, _ := test.NewNullLogger()
	stdin, stdinWriter := io.Pipe()
	defer stdinWriter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := newFakeTransport()
	transport.onSend = func(payload []byte) {
		if string(payload) == "typed\n" {
			cancel()
		}
	}

	sender := NewSender(transport, logger, func(o *SenderOptions) {
		o.Stdin = stdin
	})

	go stdinWriter.Write([]byte("typed\n"))

	if err := sender.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sent := transport.sentStrings()
	if diff := cmp.Diff([]string{"typed\n", common.EOF}, sent[1:]); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	events := transport.recorded()
	if diff := cmp.Diff([]string{".", "QUIT"}, events[len(events)-2:]); diff != "" {
		t.Errorf("teardown mismatch (-want +got):\n%s", diff)
	}
}

func TestSenderSendsNothingAfterInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// lines and cancellation race in a select, so give the race many chances
	for i := 0; i < 50; i++ {
		logger, _ := test.NewNullLogger()
		transport := newFakeTransport()
		sender := NewSender(transport, logger, func(o *SenderOptions) {
			o.Stdin = strings.NewReader("a\nb\nc\n")
		})

		if err := sender.Run(ctx); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if sent := transport.sentStrings(); len(sent) != 2 || sent[1] != common.EOF {
			t.Fatalf("sent after interrupt: %q", sent[1:])
		}
	}
}

func TestSenderQuitsWhenPeerNeverShows(t *testing.T) {
	logger, _ := test.NewNullLogger()
	transport := newFakeTransport()
	transport.respond = func(cmd string) string {
		if cmd == "LIST" {
			return "OK LIST = sender/10.0.0.1:5000 \n"
		}
		return relayResponse(cmd)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sender := NewSender(transport, logger, func(o *SenderOptions) {
		o.ListInterval = time.Millisecond
	})
	if err := sender.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() = %v, want deadline exceeded", err)
	}

	events := transport.recorded()
	if last := events[len(events)-1]; last != "QUIT" {
		t.Errorf("last event = %q, want QUIT", last)
	}
	if len(transport.sentStrings()) != 0 {
		t.Error("sent data without a peer")
	}
}

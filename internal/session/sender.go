package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/rdtrelay/internal/common"
)

type SenderOptions struct {
	Name string
	// Peer is the relay name of the receiver.
	Peer       string
	SourceFile string
	DestFile   string
	// ChunkSize caps the payload of a single content message.
	ChunkSize    int
	ListInterval time.Duration
	Stdin        io.Reader
}

func NewDefaultSenderOptions() *SenderOptions {
	return &SenderOptions{
		Name:         "sender",
		Peer:         "receiver",
		SourceFile:   Stdin,
		DestFile:     Stdout,
		ChunkSize:    common.MaxPayloadSize,
		ListInterval: 5 * time.Second,
		Stdin:        os.Stdin,
	}
}

type Sender struct {
	*Session
	options *SenderOptions
}

func NewSender(transport Transport, logger log.FieldLogger, opts ...func(*SenderOptions)) *Sender {
	options := NewDefaultSenderOptions()

	for _, opt := range opts {
		opt(options)
	}

	if options.ChunkSize <= 0 {
		options.ChunkSize = common.MaxPayloadSize
	}

	return &Sender{
		Session: New(transport, logger),
		options: options,
	}
}

// Run relays the source to the peer. Cancelling ctx while reading stdin ends
// the content early; the session is still closed down properly.
func (s *Sender) Run(ctx context.Context) error {
	var content []byte
	if s.options.SourceFile != Stdin {
		var err error
		content, err = os.ReadFile(s.options.SourceFile)
		if err != nil {
			return fmt.Errorf("reading source file: %w", err)
		}
	}

	if err := s.Probe(); err != nil {
		return err
	}
	if err := s.Name(s.options.Name); err != nil {
		return err
	}

	listing, peer, err := s.WaitForPeer(ctx, s.options.Peer, s.options.ListInterval)
	if err != nil {
		// Give up our name on the relay on the way out.
		if quitErr := s.Quit(); quitErr != nil {
			s.log.WithError(quitErr).Warn("Could not quit relay")
		}
		return err
	}
	if err := s.Connect(peer.Address); err != nil {
		return err
	}

	metadata := NewMetadata()
	metadata.Set(KeySourceFile, s.options.SourceFile)
	metadata.Set(KeyDestFile, s.options.DestFile)
	if content != nil {
		metadata.Set(KeyContentLength, strconv.Itoa(len(content)))
	}
	if self, ok := listing.Find(s.options.Name); ok {
		metadata.Set(KeySenderAddr, self.Address)
	} else {
		s.log.WithField("Name", s.options.Name).Warn("Own address missing from relay listing")
	}

	s.log.Info("Sending file metadata")
	if err := s.transport.Send([]byte(metadata.String())); err != nil {
		return fmt.Errorf("sending metadata: %w", err)
	}

	s.log.Info("Sending file contents")
	if s.options.SourceFile == Stdin {
		err = s.streamLines(ctx)
	} else {
		err = s.sendChunks(content)
	}
	if err != nil {
		return fmt.Errorf("sending contents: %w", err)
	}

	if err := s.transport.Send([]byte(common.EOF)); err != nil {
		return fmt.Errorf("sending end of file: %w", err)
	}

	if err := s.StopRelaying(); err != nil {
		return err
	}
	return s.Quit()
}

func (s *Sender) sendChunks(data []byte) error {
	for len(data) > 0 {
		n := min(len(data), s.options.ChunkSize)
		if err := s.transport.Send(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// streamLines sends stdin one line per message until EOF or until ctx is
// cancelled.
func (s *Sender) streamLines(ctx context.Context) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		reader := bufio.NewReader(s.options.Stdin)
		for {
			line, err := reader.ReadBytes('\n')
			if len(line) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Interrupted, ending transmission")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if ctx.Err() != nil {
				s.log.Info("Interrupted, ending transmission")
				return nil
			}
			if err := s.sendChunks(line); err != nil {
				return err
			}
		}
	}
}

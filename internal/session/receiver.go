package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/rdtrelay/internal/common"
)

var ErrOutsideDir = errors.New("destination outside of receive directory")

type ReceiverOptions struct {
	Name string
	// Dir confines named destination files.
	Dir    string
	Stdout io.Writer
	// Linger keeps acknowledging retransmissions of the end of file marker
	// until the sender has been quiet this long.
	Linger time.Duration
}

func NewDefaultReceiverOptions() *ReceiverOptions {
	return &ReceiverOptions{
		Name:   "receiver",
		Dir:    ".",
		Stdout: os.Stdout,
	}
}

type Receiver struct {
	*Session
	options *ReceiverOptions
}

func NewReceiver(transport Transport, logger log.FieldLogger, opts ...func(*ReceiverOptions)) *Receiver {
	options := NewDefaultReceiverOptions()

	for _, opt := range opts {
		opt(options)
	}

	return &Receiver{
		Session: New(transport, logger),
		options: options,
	}
}

// Run waits for a sender and writes what it sends to the destination named
// in its metadata. Once named on the relay, the relay session is always torn
// down before returning.
func (r *Receiver) Run() (err error) {
	if err := r.Probe(); err != nil {
		return err
	}
	if err := r.Name(r.options.Name); err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, r.teardown())
	}()

	r.log.Info("Receiving metadata")
	msg, err := r.transport.ReceiveFirst(r.setupSender)
	if err != nil {
		return fmt.Errorf("receiving metadata: %w", err)
	}
	metadata, err := ParseMetadata(string(msg))
	if err != nil {
		return err
	}

	dest, _ := metadata.Get(KeyDestFile)
	sink, err := r.openSink(dest)
	if err != nil {
		return err
	}

	r.log.WithField("Destination", dest).Info("Receiving file contents")
	written, err := r.receiveContent(sink)
	if closeErr := sink.Close(); closeErr != nil {
		r.log.WithError(closeErr).Error("Could not close destination")
		err = errors.Join(err, closeErr)
	}
	if err != nil {
		return err
	}

	if length, ok := metadata.ContentLength(); ok && length != written {
		r.log.WithFields(log.Fields{
			"Expected": length,
			"Received": written,
		}).Warn("Content length mismatch")
	}

	return r.transport.Linger(r.options.Linger)
}

// setupSender runs on the first metadata message, before it is acknowledged:
// it tells the relay to forward our acknowledgments to the sender.
func (r *Receiver) setupSender(payload []byte) error {
	r.log.Info("Setting up connection to sender")
	metadata, err := ParseMetadata(string(payload))
	if err != nil {
		return err
	}

	addr, ok := metadata.Get(KeySenderAddr)
	if !ok {
		r.log.Warn("Metadata carries no sender address")
		return nil
	}

	// Retransmissions of the metadata may have queued up meanwhile.
	if _, err := r.transport.DrainPending(); err != nil {
		return err
	}
	return r.Connect(addr)
}

func (r *Receiver) receiveContent(sink io.Writer) (int64, error) {
	var written int64
	for {
		msg, err := r.transport.Receive()
		if err != nil {
			return written, err
		}
		if string(msg) == common.EOF {
			return written, nil
		}

		n, err := sink.Write(msg)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
}

func (r *Receiver) teardown() error {
	if _, err := r.transport.DrainPending(); err != nil {
		return err
	}
	if err := r.StopRelaying(); err != nil {
		return err
	}
	return r.Quit()
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error {
	return nil
}

func (r *Receiver) openSink(dest string) (io.WriteCloser, error) {
	if dest == Stdout {
		return nopCloser{r.options.Stdout}, nil
	}

	dir, err := filepath.Abs(r.options.Dir)
	if err != nil {
		return nil, err
	}
	file := filepath.Clean(filepath.Join(dir, dest))

	rel, err := filepath.Rel(dir, file)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		r.log.WithFields(log.Fields{
			"Dir":         dir,
			"Requested":   dest,
			"CleanedPath": file,
		}).Warn("Refusing destination out of directory")
		return nil, fmt.Errorf("%w: %q", ErrOutsideDir, dest)
	}

	f, err := os.Create(file)
	if err != nil {
		return nil, fmt.Errorf("opening destination: %w", err)
	}
	return f, nil
}

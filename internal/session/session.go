// Package session drives a file relay between two peers through a relay
// server, on top of a reliable channel.
//
// A failed check of a relay confirmation is logged and otherwise ignored:
// the relay is assumed to have done its part whatever the exact wording of
// the reply. Network errors end the session.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Transport is the reliable channel a session runs on.
type Transport interface {
	Send(payload []byte) error
	Receive() ([]byte, error)
	ReceiveFirst(hook func(payload []byte) error) ([]byte, error)
	SendAndWait(message []byte) ([]byte, error)
	DrainPending() (int, error)
	Linger(quiet time.Duration) error
}

// ProbeMessage is echoed back by the relay to prove it is alive.
const ProbeMessage = "Hello, world!"

type Step string

const (
	StepProbe        Step = "probe"
	StepName         Step = "name"
	StepList         Step = "list"
	StepConnect      Step = "connect"
	StepStopRelaying Step = "stop relaying"
	StepQuit         Step = "quit"
)

type Session struct {
	transport Transport
	log       log.FieldLogger
}

func New(transport Transport, logger log.FieldLogger) *Session {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Session{
		transport: transport,
		log:       logger,
	}
}

// command sends a raw relay command and reports whether the reply was the
// expected one.
func (s *Session) command(step Step, cmd string, expected string) (bool, error) {
	response, err := s.transport.SendAndWait([]byte(cmd))
	if err != nil {
		return false, fmt.Errorf("%s: %w", step, err)
	}
	return s.expect(step, response, expected), nil
}

func (s *Session) expect(step Step, response []byte, expected string) bool {
	if string(response) == expected {
		return true
	}
	s.log.WithFields(log.Fields{
		"Step":     step,
		"Expected": fmt.Sprintf("%q", expected),
		"Received": fmt.Sprintf("%q", response),
	}).Warn("Unexpected relay response")
	return false
}

func (s *Session) Probe() error {
	s.log.Info("Checking relay")
	_, err := s.command(StepProbe, ProbeMessage, ProbeMessage)
	return err
}

func (s *Session) Name(name string) error {
	s.log.WithField("Name", name).Info("Naming ourselves")
	_, err := s.command(StepName, "NAME "+name, "OK Hello "+name+"\n")
	return err
}

func (s *Session) List() (Listing, error) {
	response, err := s.transport.SendAndWait([]byte("LIST"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StepList, err)
	}
	return ParseList(string(response))
}

// WaitForPeer polls LIST every interval until name shows up, and returns the
// listing it was found in.
func (s *Session) WaitForPeer(ctx context.Context, name string, interval time.Duration) (Listing, Peer, error) {
	for {
		s.log.WithField("Peer", name).Info("Looking for peer")

		listing, err := s.List()
		switch {
		case err == nil:
			if peer, ok := listing.Find(name); ok {
				s.log.WithFields(log.Fields{
					"Peer":    peer.Name,
					"Address": peer.Address,
				}).Info("Found peer")
				return listing, peer, nil
			}
		case errors.Is(err, ErrMalformedListing):
			s.log.WithError(err).Warn("Ignoring relay listing")
		default:
			return nil, Peer{}, err
		}

		select {
		case <-ctx.Done():
			return nil, Peer{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (s *Session) Connect(address string) error {
	s.log.WithField("Address", address).Info("Connecting to peer")
	_, err := s.command(StepConnect, "CONN "+address, "OK Relaying to /"+address+"\n")
	return err
}

func (s *Session) StopRelaying() error {
	s.log.Info("Switching out of relay mode")
	_, err := s.command(StepStopRelaying, ".", "OK Not relaying\n")
	return err
}

func (s *Session) Quit() error {
	s.log.Info("Quitting")
	_, err := s.command(StepQuit, "QUIT", "OK Bye\n")
	return err
}

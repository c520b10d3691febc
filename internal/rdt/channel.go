// Package rdt implements stop-and-wait reliable delivery with a one-bit
// sequence number on top of an unreliable datagram connection.
//
// A Channel is not safe for concurrent use. Every call blocks until it
// completes, and at most one message is ever in flight.
package rdt

import (
	"errors"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/rdtrelay/internal/common"
)

var (
	ErrDeliveryFailed = errors.New("delivery failed")
	ErrClosed         = errors.New("use of closed channel")
)

// FirstMessageHook sees the first accepted message of a session before it is
// acknowledged, so the caller can redirect the channel at the real peer.
type FirstMessageHook = func(payload []byte) error

type Channel struct {
	conn    net.PacketConn
	peer    net.Addr
	codec   common.Codec
	options *Options
	log     log.FieldLogger

	sendSeq common.Bit
	recvSeq common.Bit
	closed  bool

	stats stats
}

func New(conn net.PacketConn, peer net.Addr, opts ...func(*Options)) *Channel {
	options := NewDefaultOptions()

	for _, opt := range opts {
		opt(options)
	}

	if options.BufferSize <= 0 {
		options.BufferSize = common.DefaultBufferSize
	}
	if options.Logger == nil {
		options.Logger = log.StandardLogger()
	}

	return &Channel{
		conn:    conn,
		peer:    peer,
		codec:   common.Codec{Checksum: options.Checksum},
		options: options,
		log:     options.Logger,
	}
}

// Dial opens an unconnected UDP socket on an ephemeral port whose peer is
// server:port.
func Dial(server string, port int, opts ...func(*Options)) (*Channel, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(server, fmt.Sprint(port)))
	if err != nil {
		return nil, err
	}

	network := "udp4"
	if udpAddr.IP.To4() == nil {
		network = "udp6"
	}

	conn, err := net.ListenUDP(network, nil)
	if err != nil {
		return nil, err
	}

	return New(conn, udpAddr, opts...), nil
}

func (ch *Channel) Peer() net.Addr {
	return ch.peer
}

// SetPeer points every following datagram at addr.
func (ch *Channel) SetPeer(addr net.Addr) {
	ch.log.WithFields(log.Fields{
		"From": ch.peer,
		"To":   addr,
	}).Info("Redirecting channel")
	ch.peer = addr
}

func (ch *Channel) LocalAddr() net.Addr {
	return ch.conn.LocalAddr()
}

func (ch *Channel) Stats() Stats {
	return ch.stats.Stats
}

// RetransmittedMessages lists the indices of sent messages that needed more
// than one transmission.
func (ch *Channel) RetransmittedMessages() []uint32 {
	return ch.stats.retransmittedMessages()
}

func (ch *Channel) Close() error {
	if ch.closed {
		return ErrClosed
	}
	ch.closed = true
	return ch.conn.Close()
}

func (ch *Channel) udtSend(data []byte) error {
	if ch.closed {
		return ErrClosed
	}
	ch.log.WithField("Data", fmt.Sprintf("%q", data)).Debug("Sending")
	ch.stats.Transmissions++
	_, err := ch.conn.WriteTo(data, ch.peer)
	return err
}

// udtReceive reads one datagram. It reports false instead of an error when
// the configured timeout passes without one.
func (ch *Channel) udtReceive() ([]byte, bool, error) {
	if ch.closed {
		return nil, false, ErrClosed
	}

	var deadline time.Time
	if ch.options.Timeout > 0 {
		deadline = time.Now().Add(ch.options.Timeout)
	}
	if err := ch.conn.SetReadDeadline(deadline); err != nil {
		return nil, false, err
	}

	buf := make([]byte, ch.options.BufferSize)
	n, _, err := ch.conn.ReadFrom(buf)
	if err != nil {
		if isTimeout(err) {
			ch.stats.Timeouts++
			return nil, false, nil
		}
		return nil, false, err
	}

	ch.log.WithField("Data", fmt.Sprintf("%q", buf[:n])).Debug("Receiving")
	return buf[:n], true, nil
}

func isTimeout(err error) bool {
	var e net.Error
	return errors.As(err, &e) && e.Timeout()
}

func (ch *Channel) exhausted(attempt int) bool {
	return ch.options.MaxRetries > 0 && attempt > ch.options.MaxRetries
}

// SendAndWait transmits message outside of the ARQ protocol and returns the
// first datagram that comes back, resending on every timeout.
func (ch *Channel) SendAndWait(message []byte) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if ch.exhausted(attempt) {
			return nil, fmt.Errorf("%w: no response to %q after %d attempts", ErrDeliveryFailed, message, attempt)
		}

		if err := ch.udtSend(message); err != nil {
			return nil, err
		}

		response, received, err := ch.udtReceive()
		if err != nil {
			return nil, err
		}
		if received {
			return response, nil
		}
	}
}

// Send returns once the peer has acknowledged payload.
func (ch *Channel) Send(payload []byte) error {
	pck := ch.codec.Encode(ch.sendSeq, payload)

	for attempt := 0; ; attempt++ {
		if ch.exhausted(attempt) {
			return fmt.Errorf("%w: message %d unacknowledged after %d attempts", ErrDeliveryFailed, ch.stats.Sent, attempt)
		}
		if attempt > 0 {
			ch.stats.retransmit()
		}

		if err := ch.udtSend(pck); err != nil {
			return err
		}

		reply, received, err := ch.udtReceive()
		if err != nil {
			return err
		}
		if !received {
			continue
		}

		if common.IsAck(reply) {
			break
		}
		if common.IsNak(reply) {
			ch.stats.Naks++
		} else {
			ch.log.WithField("Data", fmt.Sprintf("%q", reply)).Debug("Expected ack")
		}
	}

	ch.sendSeq = ch.sendSeq.Flip()
	ch.stats.Sent++
	return nil
}

// Receive returns the next new message from the peer, exactly once and in
// order.
func (ch *Channel) Receive() ([]byte, error) {
	return ch.receive(nil)
}

// ReceiveFirst is Receive for the first message of a session. Until hook has
// run nothing is sent back, since the peer is not known yet.
func (ch *Channel) ReceiveFirst(hook FirstMessageHook) ([]byte, error) {
	return ch.receive(hook)
}

func (ch *Channel) receive(hook FirstMessageHook) ([]byte, error) {
	firstTime := hook != nil

	var payload []byte
	for {
		// Waiting is unbounded; MaxRetries only limits retransmissions.
		data, received, err := ch.udtReceive()
		if err != nil {
			return nil, err
		}
		if !received {
			continue
		}

		pck, err := ch.codec.Decode(data)
		if err != nil {
			ch.stats.Corrupted++
			ch.log.WithError(err).Debug("Dropping datagram")
			if !firstTime {
				if err := ch.udtSend(common.NAK); err != nil {
					return nil, err
				}
			}
			continue
		}

		if pck.Seq == ch.recvSeq {
			payload = pck.Payload
			break
		}

		ch.stats.Duplicates++
		if !firstTime {
			if err := ch.udtSend(common.ACK); err != nil {
				return nil, err
			}
		}
	}

	if firstTime {
		if err := hook(payload); err != nil {
			return nil, err
		}
	}

	if err := ch.udtSend(common.ACK); err != nil {
		return nil, err
	}
	ch.recvSeq = ch.recvSeq.Flip()
	ch.stats.Delivered++

	return payload, nil
}

// drainWait is how long DrainPending waits for one more queued datagram.
const drainWait = time.Millisecond

// DrainPending discards every datagram already queued, waiting at most
// drainWait for each, and returns how many there were.
func (ch *Channel) DrainPending() (int, error) {
	if ch.closed {
		return 0, ErrClosed
	}

	defer ch.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, ch.options.BufferSize)
	drained := 0
	for {
		// A deadline already in the past fails the read even with datagrams
		// queued, so every read gets a short one of its own.
		if err := ch.conn.SetReadDeadline(time.Now().Add(drainWait)); err != nil {
			return drained, err
		}
		n, _, err := ch.conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				break
			}
			return drained, err
		}
		ch.log.WithField("Data", fmt.Sprintf("%q", buf[:n])).Debug("Discarding")
		drained++
	}

	if drained > 0 {
		ch.log.WithField("Count", drained).Info("Discarded pending datagrams")
	}
	return drained, nil
}

// Linger acknowledges retransmissions of the last delivered message until
// the connection has been quiet for quiet. It covers a lost final ACK.
func (ch *Channel) Linger(quiet time.Duration) error {
	if ch.closed {
		return ErrClosed
	}
	if quiet <= 0 {
		return nil
	}

	defer ch.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, ch.options.BufferSize)
	for {
		if err := ch.conn.SetReadDeadline(time.Now().Add(quiet)); err != nil {
			return err
		}

		n, _, err := ch.conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				return nil
			}
			return err
		}

		pck, err := ch.codec.Decode(buf[:n])
		if err != nil {
			continue
		}
		if pck.Seq == ch.recvSeq {
			ch.log.WithField("Data", fmt.Sprintf("%q", pck.Payload)).Warn("Ignoring new message while lingering")
			continue
		}

		ch.stats.Duplicates++
		if err := ch.udtSend(common.ACK); err != nil {
			return err
		}
	}
}

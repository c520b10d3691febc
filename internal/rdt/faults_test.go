package rdt

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

type fault int

const (
	pass fault = iota
	drop
	corrupt
	duplicate
)

// faultyConn applies a scripted fault to every outgoing datagram and keeps a
// copy of what the caller asked to write.
type faultyConn struct {
	net.PacketConn

	mu     sync.Mutex
	plan   func(n int, data []byte) fault
	writes [][]byte
}

func (c *faultyConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	n := len(c.writes)
	c.writes = append(c.writes, bytes.Clone(p))
	f := pass
	if c.plan != nil {
		f = c.plan(n, p)
	}
	c.mu.Unlock()

	switch f {
	case drop:
		return len(p), nil
	case corrupt:
		garbled := bytes.Clone(p)
		garbled[len(garbled)-1] ^= 0xff
		return c.PacketConn.WriteTo(garbled, addr)
	case duplicate:
		if _, err := c.PacketConn.WriteTo(p, addr); err != nil {
			return 0, err
		}
	}
	return c.PacketConn.WriteTo(p, addr)
}

func (c *faultyConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func quiet() func(*Options) {
	logger, _ := test.NewNullLogger()
	return WithLogger(logger)
}

// rawPeer is the far end of a channel under test, driven by hand.
type rawPeer struct {
	t    *testing.T
	conn *net.UDPConn
}

func newRawPeer(t *testing.T) *rawPeer {
	return &rawPeer{t: t, conn: listen(t)}
}

func (p *rawPeer) addr() net.Addr {
	return p.conn.LocalAddr()
}

func (p *rawPeer) send(to net.Addr, data []byte) {
	p.t.Helper()
	if _, err := p.conn.WriteTo(data, to); err != nil {
		p.t.Fatalf("WriteTo: %v", err)
	}
}

func (p *rawPeer) read() []byte {
	p.t.Helper()
	data, ok := p.tryRead(2 * time.Second)
	if !ok {
		p.t.Fatal("timed out waiting for datagram")
	}
	return data
}

func (p *rawPeer) tryRead(wait time.Duration) ([]byte, bool) {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(wait))
	buf := make([]byte, 4096)
	n, _, err := p.conn.ReadFrom(buf)
	if err != nil {
		if isTimeout(err) {
			return nil, false
		}
		p.t.Fatalf("ReadFrom: %v", err)
	}
	return buf[:n], true
}

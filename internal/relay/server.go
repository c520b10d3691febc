// Package relay is a small relay server speaking the NAME / LIST / CONN text
// protocol, for running both peers locally.
package relay

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type client struct {
	name   string
	addr   *net.UDPAddr
	target *net.UDPAddr
	time   time.Time
}

type Server struct {
	clients map[string]*client
	mu      sync.Mutex
	options *Options
	conn    *net.UDPConn
	done    chan struct{}
	closing sync.Once
	log     log.FieldLogger
}

func New(opts ...func(*Options)) *Server {
	options := NewDefaultOptions()

	for _, opt := range opts {
		opt(options)
	}

	return &Server{
		clients: make(map[string]*client),
		options: options,
		done:    make(chan struct{}),
		log:     log.StandardLogger(),
	}
}

func (server *Server) SetLogger(logger log.FieldLogger) {
	server.log = logger
}

// Listen binds the UDP socket. Port 0 picks a free one, see Addr.
func (server *Server) Listen() error {
	udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(server.options.Address, fmt.Sprint(server.options.Port)))
	if err != nil {
		return fmt.Errorf("could not resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("could not start listening: %w", err)
	}
	server.conn = conn

	server.log.Infof("Started relay on %v", conn.LocalAddr())
	return nil
}

func (server *Server) Addr() *net.UDPAddr {
	return server.conn.LocalAddr().(*net.UDPAddr)
}

// Serve handles datagrams until Close is called.
func (server *Server) Serve() error {
	if server.options.IdleTimeout > 0 {
		go server.startTimeout()
	}

	buf := make([]byte, server.options.BufferSize)
	for {
		n, addr, err := server.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			server.log.WithError(err).Error("Could not retrieve UDP packet")
			continue
		}

		server.handlePacket(addr, buf[:n])
	}
}

func (server *Server) ListenAndServe() error {
	if err := server.Listen(); err != nil {
		return err
	}
	return server.Serve()
}

// Close stops Serve. Closing again only reports the socket error.
func (server *Server) Close() error {
	server.closing.Do(func() { close(server.done) })
	return server.conn.Close()
}

func (server *Server) send(addr *net.UDPAddr, data []byte) {
	if _, err := server.conn.WriteToUDP(data, addr); err != nil {
		server.log.WithError(err).WithField("Address", addr).Error("Could not write packet to UDP")
	}
}

func (server *Server) handlePacket(addr *net.UDPAddr, data []byte) {
	server.mu.Lock()
	c, ok := server.clients[addr.String()]
	if !ok {
		c = &client{addr: addr}
		server.clients[addr.String()] = c
	}
	c.time = time.Now()
	target := c.target
	server.mu.Unlock()

	cmd := string(data)
	if target != nil && cmd != "." && cmd != "QUIT" {
		server.send(target, data)
		return
	}

	switch {
	case strings.HasPrefix(cmd, "NAME "):
		server.name(c, strings.TrimSpace(strings.TrimPrefix(cmd, "NAME ")))
	case cmd == "LIST":
		server.send(addr, []byte(server.list()))
	case strings.HasPrefix(cmd, "CONN "):
		server.connect(c, strings.TrimSpace(strings.TrimPrefix(cmd, "CONN ")))
	case cmd == ".":
		server.mu.Lock()
		c.target = nil
		server.mu.Unlock()
		server.send(addr, []byte("OK Not relaying\n"))
	case cmd == "QUIT":
		server.mu.Lock()
		delete(server.clients, addr.String())
		server.mu.Unlock()
		server.log.WithField("Client", addr).Info("Client quit")
		server.send(addr, []byte("OK Bye\n"))
	default:
		server.send(addr, data)
	}
}

func (server *Server) name(c *client, name string) {
	if name == "" || strings.ContainsAny(name, "/ ") {
		server.send(c.addr, []byte("ERROR Invalid name\n"))
		return
	}

	server.mu.Lock()
	c.name = name
	server.mu.Unlock()

	server.log.WithFields(log.Fields{
		"Client": c.addr,
		"Name":   name,
	}).Info("Named client")
	server.send(c.addr, []byte("OK Hello "+name+"\n"))
}

func (server *Server) list() string {
	server.mu.Lock()
	entries := make([]string, 0, len(server.clients))
	for _, c := range server.clients {
		if c.name != "" {
			entries = append(entries, c.name+"/"+c.addr.String())
		}
	}
	server.mu.Unlock()

	sort.Strings(entries)

	var sb strings.Builder
	sb.WriteString("OK LIST = ")
	for _, entry := range entries {
		sb.WriteString(entry)
		sb.WriteString(" ")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (server *Server) connect(c *client, address string) {
	target, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		server.log.WithError(err).WithField("Target", address).Warn("Invalid relay target")
		server.send(c.addr, []byte("ERROR Invalid address\n"))
		return
	}

	server.mu.Lock()
	c.target = target
	server.mu.Unlock()

	server.log.WithFields(log.Fields{
		"Client": c.addr,
		"Target": target,
	}).Info("Relaying")
	server.send(c.addr, []byte("OK Relaying to /"+address+"\n"))
}

func (server *Server) startTimeout() {
	ticker := time.NewTicker(server.options.IdleTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-server.done:
			return
		case <-ticker.C:
			server.cleanup()
		}
	}
}

func (server *Server) cleanup() {
	server.mu.Lock()
	defer server.mu.Unlock()

	for key, c := range server.clients {
		if time.Now().After(c.time.Add(server.options.IdleTimeout)) {
			delete(server.clients, key)
			server.log.WithField("Client", c.addr).Info("Closed idle client")
		}
	}
}

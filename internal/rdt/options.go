package rdt

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/rdtrelay/internal/common"
)

type Options struct {
	// Timeout bounds every wait for a reply. Zero blocks forever.
	Timeout time.Duration
	// MaxRetries bounds retransmissions of one message. Zero retries forever.
	MaxRetries int
	BufferSize int
	Checksum   common.Checksum
	Logger     log.FieldLogger
}

func NewDefaultOptions() *Options {
	return &Options{
		Timeout:    0,
		MaxRetries: 0,
		BufferSize: common.DefaultBufferSize,
		Checksum:   common.MD5,
		Logger:     log.StandardLogger(),
	}
}

func WithTimeout(d time.Duration) func(*Options) {
	return func(o *Options) {
		o.Timeout = d
	}
}

func WithMaxRetries(n int) func(*Options) {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

func WithBufferSize(n int) func(*Options) {
	return func(o *Options) {
		o.BufferSize = n
	}
}

func WithChecksum(c common.Checksum) func(*Options) {
	return func(o *Options) {
		o.Checksum = c
	}
}

func WithLogger(l log.FieldLogger) func(*Options) {
	return func(o *Options) {
		o.Logger = l
	}
}

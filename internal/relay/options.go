package relay

import "time"

type Options struct {
	Address     string
	Port        int
	IdleTimeout time.Duration
	BufferSize  int
}

func NewDefaultOptions() *Options {
	return &Options{
		Address:     "0.0.0.0",
		Port:        8888,
		IdleTimeout: 5 * time.Minute,
		BufferSize:  2048,
	}
}

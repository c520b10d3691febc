package rdt

import (
	"github.com/kelindar/bitmap"
)

// Stats counts what happened on the wire.
type Stats struct {
	Sent            uint32 // messages acknowledged by the peer
	Delivered       uint32 // messages handed to the caller
	Transmissions   int
	Retransmissions int
	Timeouts        int
	Naks            int
	Duplicates      int
	Corrupted       int
}

type stats struct {
	Stats
	// index of every sent message that needed more than one transmission
	retransmitted bitmap.Bitmap
}

func (s *stats) retransmit() {
	s.Retransmissions++
	s.retransmitted.Set(s.Sent)
}

func (s *stats) retransmittedMessages() []uint32 {
	msgs := make([]uint32, 0, s.retransmitted.Count())
	s.retransmitted.Range(func(x uint32) {
		msgs = append(msgs, x)
	})
	return msgs
}

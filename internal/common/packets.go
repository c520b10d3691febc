package common

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
)

var ErrCorrupted = errors.New("corrupted packet")

type Packet struct {
	Seq      Bit
	Checksum [ChecksumSize]byte
	Payload  []byte
}

// Codec turns payloads into wire packets and back.
type Codec struct {
	Checksum Checksum
}

var DefaultCodec = Codec{Checksum: MD5}

func NewPacket(seq Bit, payload []byte) *Packet {
	return DefaultCodec.NewPacket(seq, payload)
}

func Encode(seq Bit, payload []byte) []byte {
	return DefaultCodec.Encode(seq, payload)
}

func Decode(arr []byte) (*Packet, error) {
	return DefaultCodec.Decode(arr)
}

func (codec Codec) NewPacket(seq Bit, payload []byte) *Packet {
	return &Packet{
		Seq:      seq,
		Checksum: codec.Checksum.Sum(payload),
		Payload:  payload,
	}
}

func (codec Codec) Encode(seq Bit, payload []byte) []byte {
	return codec.NewPacket(seq, payload).ToBytes()
}

// Decode validates framing and checksum. On error no field of the
// packet can be trusted, so none is returned.
func (codec Codec) Decode(arr []byte) (*Packet, error) {
	if !bytes.HasPrefix(arr, Tag) {
		return nil, fmt.Errorf("%w: missing tag", ErrCorrupted)
	}
	if len(arr) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than header", ErrCorrupted, len(arr))
	}

	var seq Bit
	switch arr[len(Tag)] {
	case '0':
		seq = Zero
	case '1':
		seq = One
	default:
		return nil, fmt.Errorf("%w: sequence bit %q", ErrCorrupted, arr[len(Tag)])
	}

	sumStart := len(Tag) + 2
	sumEnd := sumStart + ChecksumSize
	if arr[sumStart-1] != separator || arr[sumEnd] != separator {
		return nil, fmt.Errorf("%w: bad separator", ErrCorrupted)
	}

	pck := &Packet{
		Seq:     seq,
		Payload: arr[HeaderSize:],
	}
	copy(pck.Checksum[:], arr[sumStart:sumEnd])

	sum := codec.Checksum.Sum(pck.Payload)
	if subtle.ConstantTimeCompare(sum[:], pck.Checksum[:]) != 1 {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupted)
	}

	return pck, nil
}

func (pck *Packet) ToBytes() []byte {
	arr := make([]byte, HeaderSize+len(pck.Payload))
	n := copy(arr, Tag)
	arr[n] = pck.Seq.char()
	arr[n+1] = separator
	copy(arr[n+2:n+2+ChecksumSize], pck.Checksum[:])
	arr[HeaderSize-1] = separator
	copy(arr[HeaderSize:], pck.Payload)

	return arr
}

func IsAck(arr []byte) bool {
	return bytes.Equal(arr, ACK)
}

func IsNak(arr []byte) bool {
	return bytes.Equal(arr, NAK)
}

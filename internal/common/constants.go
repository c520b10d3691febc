package common

// Tag starts every data packet. Anything on the wire without it is noise.
var Tag = []byte("data|")

// Acknowledgment sentinels, sent bare with no framing.
var (
	ACK = []byte("ack")
	NAK = []byte("nak")
)

// EOF is sent as its own message to end a content stream.
const EOF = "===== END OF FILE ====="

const ChecksumSize = 16

const separator byte = '|'

// HeaderSize is everything in front of the payload: tag, bit, '|', digest, '|'.
const HeaderSize int = 5 + 1 + 1 + ChecksumSize + 1

const DefaultBufferSize = 2048

// MaxPayloadSize is the largest payload that fits in a default sized datagram buffer.
const MaxPayloadSize = DefaultBufferSize - HeaderSize

// Bit is the one-bit sequence number of the stop-and-wait protocol.
type Bit uint8

const (
	Zero Bit = iota
	One
)

func (b Bit) Flip() Bit {
	return 1 - b
}

func (b Bit) char() byte {
	return '0' + byte(b)
}

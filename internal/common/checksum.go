package common

import (
	"crypto/md5"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Checksum selects the 16-byte digest carried in every packet. Both peers
// must agree on it.
type Checksum uint8

const (
	MD5 Checksum = iota
	Blake2b
)

func ParseChecksum(name string) (Checksum, error) {
	switch strings.ToLower(name) {
	case "", "md5":
		return MD5, nil
	case "blake2b":
		return Blake2b, nil
	default:
		return 0, fmt.Errorf("unknown checksum %q", name)
	}
}

func (c Checksum) String() string {
	switch c {
	case MD5:
		return "md5"
	case Blake2b:
		return "blake2b"
	default:
		return fmt.Sprintf("Checksum(%d)", uint8(c))
	}
}

func (c Checksum) Sum(data []byte) [ChecksumSize]byte {
	if c == Blake2b {
		h, err := blake2b.New(ChecksumSize, nil)
		if err != nil {
			// Only fails for sizes outside 1..64 or keys longer than 64 bytes.
			panic(err)
		}
		h.Write(data)
		var sum [ChecksumSize]byte
		copy(sum[:], h.Sum(nil))
		return sum
	}
	return md5.Sum(data)
}

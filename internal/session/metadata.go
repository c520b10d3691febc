package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedMetadata = errors.New("malformed metadata")

const (
	KeySourceFile    = "source_file"
	KeyDestFile      = "dest_file"
	KeyContentLength = "content_length"
	KeySenderAddr    = "sender_addr"
)

// Standard stream names usable as source_file and dest_file.
const (
	Stdin  = "stdin"
	Stdout = "stdout"
)

// Metadata is an ordered set of key/value pairs, sent as "key: value" lines.
type Metadata struct {
	keys   []string
	values map[string]string
}

func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]string)}
}

func (m *Metadata) Set(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *Metadata) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *Metadata) Keys() []string {
	return append([]string(nil), m.keys...)
}

// ContentLength reports false when the key is absent or not a number.
func (m *Metadata) ContentLength() (int64, bool) {
	v, ok := m.values[KeyContentLength]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (m *Metadata) String() string {
	lines := make([]string, 0, len(m.keys))
	for _, k := range m.keys {
		lines = append(lines, k+": "+m.values[k])
	}
	return strings.Join(lines, "\n")
}

// ParseMetadata requires both source_file and dest_file.
func ParseMetadata(msg string) (*Metadata, error) {
	m := NewMetadata()
	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		k, v, found := strings.Cut(line, ": ")
		if !found || k == "" {
			return nil, fmt.Errorf("%w: line %q", ErrMalformedMetadata, line)
		}
		m.Set(k, v)
	}

	for _, k := range []string{KeySourceFile, KeyDestFile} {
		if _, ok := m.values[k]; !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedMetadata, k)
		}
	}
	return m, nil
}

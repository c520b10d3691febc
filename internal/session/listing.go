package session

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedListing = errors.New("malformed peer listing")

const listPrefix = "OK LIST = "

// Peer is one entry of a relay LIST response.
type Peer struct {
	Name    string
	Address string
}

type Listing []Peer

// ParseList parses "OK LIST = name1/addr1 name2/addr2 ... \n". Tokens that
// are not name/address pairs are skipped.
func ParseList(response string) (Listing, error) {
	rest, ok := strings.CutPrefix(response, listPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformedListing, response)
	}

	listing := Listing{}
	for _, token := range strings.Fields(rest) {
		name, address, found := strings.Cut(token, "/")
		if !found || name == "" || address == "" {
			continue
		}
		listing = append(listing, Peer{Name: name, Address: address})
	}
	return listing, nil
}

func (l Listing) Find(name string) (Peer, bool) {
	for _, peer := range l {
		if peer.Name == name {
			return peer, true
		}
	}
	return Peer{}, false
}

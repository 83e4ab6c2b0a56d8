// Package invite encodes and decodes join links. The group key travels
// only in the URL fragment, which a browser never transmits to a server.
//
// Link shape: {base}#/join/{groupId}/{base64url(groupKey)}[?name={groupName}]
package invite

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/relves/groupsync/pkg/types"
)

// ErrInvalidLink indicates a link that does not carry a join fragment.
var ErrInvalidLink = errors.New("invalid invite link")

// Link is the data an invite carries: everything a joiner needs to request
// admission and decrypt group content once admitted.
type Link struct {
	GroupID   types.GroupID
	GroupKey  []byte
	GroupName string
}

// Encode renders a join link under the given base URL.
func Encode(baseURL string, link Link) (string, error) {
	if link.GroupID == "" {
		return "", fmt.Errorf("%w: group id is required", ErrInvalidLink)
	}
	if len(link.GroupKey) == 0 {
		return "", fmt.Errorf("%w: group key is required", ErrInvalidLink)
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(baseURL, "/"))
	b.WriteString("#/join/")
	b.WriteString(url.PathEscape(string(link.GroupID)))
	b.WriteString("/")
	b.WriteString(base64.RawURLEncoding.EncodeToString(link.GroupKey))
	if link.GroupName != "" {
		b.WriteString("?name=")
		b.WriteString(url.QueryEscape(link.GroupName))
	}
	return b.String(), nil
}

// Decode parses a join link produced by Encode. It accepts both a full URL
// and a bare fragment, and tolerates padded base64 in the key segment.
func Decode(raw string) (Link, error) {
	fragment := raw
	if i := strings.Index(raw, "#"); i >= 0 {
		fragment = raw[i+1:]
	}

	query := ""
	if i := strings.Index(fragment, "?"); i >= 0 {
		fragment, query = fragment[:i], fragment[i+1:]
	}

	rest, ok := strings.CutPrefix(strings.TrimPrefix(fragment, "/"), "join/")
	if !ok {
		return Link{}, fmt.Errorf("%w: missing join path", ErrInvalidLink)
	}

	groupPart, keyPart, ok := strings.Cut(rest, "/")
	if !ok || groupPart == "" || keyPart == "" {
		return Link{}, fmt.Errorf("%w: expected /join/{groupId}/{key}", ErrInvalidLink)
	}

	groupID, err := url.PathUnescape(groupPart)
	if err != nil {
		return Link{}, fmt.Errorf("%w: bad group id: %v", ErrInvalidLink, err)
	}

	key, err := decodeKey(keyPart)
	if err != nil {
		return Link{}, fmt.Errorf("%w: bad group key: %v", ErrInvalidLink, err)
	}

	link := Link{GroupID: types.GroupID(groupID), GroupKey: key}
	if query != "" {
		values, err := url.ParseQuery(query)
		if err == nil {
			link.GroupName = values.Get("name")
		}
	}
	return link, nil
}

// decodeKey decodes url-safe base64, re-adding stripped padding to the
// nearest multiple of 4.
func decodeKey(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}
	return base64.URLEncoding.DecodeString(s)
}

package docstore

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

var idPrefixes = map[string]string{
	"projects": "proj",
	"tasks":    "task",
	"notes":    "note",
	"inbox":    "inbox",
	"chat":     "msg",
	"users":    "user",
}

// NewID returns prefix-<suffix> where suffix is 16 chars of lowercase base32
// (80 bits). An empty prefix yields just the suffix.
func NewID(prefix string) (string, error) {
	var b [10]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	suffix := strings.ToLower(enc.EncodeToString(b[:]))
	if prefix == "" {
		return suffix, nil
	}
	return prefix + "-" + suffix, nil
}

func newDocumentID(collection string) (string, error) {
	p, ok := idPrefixes[collection]
	if !ok {
		p = "doc"
	}
	return NewID(p)
}

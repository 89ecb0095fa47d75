package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint hashes the content of a posting independently of its URL, so
// the same posting mirrored at two URLs (or a posting whose URL changed but
// whose content did not) is recognized as identical work. Title, organization
// and description are case-folded and whitespace-normalized first; a purely
// cosmetic difference does not change the fingerprint.
func Fingerprint(p JobPosting) string {
	h := sha256.New()
	h.Write([]byte(normalizeContent(p.Title)))
	h.Write([]byte{0})
	h.Write([]byte(normalizeContent(p.Organization)))
	h.Write([]byte{0})
	h.Write([]byte(normalizeContent(p.Description)))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeContent(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

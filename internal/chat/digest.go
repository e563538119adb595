package chat

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainSnapshot separates snapshot digests from any other hash use.
// The version suffix allows a future algorithm change.
const DomainSnapshot = "chatsync/snapshot/v1"

// Digest computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null byte prevents domain/data boundary ambiguity.
func Digest(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

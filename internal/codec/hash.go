package codec

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainEvent separates event payload hashes from any other use of SHA-256
// in the system. The version suffix leaves room for a future algorithm.
const DomainEvent = "worldforge/event/v1"

// hashWithDomain computes SHA256(domain || 0x00 || parts joined by 0x00).
func hashWithDomain(domain string, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write([]byte{0x00})
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PayloadHash returns the integrity hash stored with an event.
// The payload must already be canonical.
func PayloadHash(eventType string, payload []byte) string {
	return hashWithDomain(DomainEvent, []byte(eventType), payload)
}

// Package codec produces the canonical byte form of persisted event payloads.
//
// Every event payload is stored as RFC 8785 canonical JSON so that the same
// logical event always has the same bytes, whichever process wrote it:
//   - object keys sorted by UTF-16 code units
//   - strings NFC normalized, no HTML escaping
//   - integers only; floats are rejected because they cannot be replayed
//     bit-identically across platforms
//   - null is allowed (it is how an update clears an optional field)
//
// PayloadHash binds an event type to its canonical payload with SHA-256 and
// domain separation; the store keeps the hash next to each event and checks
// it again on load.
package codec

// Package transform implements the session-scoped content transform used
// between the relay and its clients.
//
// Every session owns two independent states: an encoder (relay to client)
// and a decoder (client to relay). A state is seeded from three values
// agreed during pairing (entropy, nonce and a personalization string) and
// advances a sequence number on every call.
//
// # Wire format
//
// Each transformed payload is a self-contained message:
//
//	version (1) || sequence (8, big endian) || XChaCha20-Poly1305(payload)
//
// The first nine bytes are authenticated as associated data. The AEAD key
// and nonce prefix are derived with HKDF-SHA256 from the seed values, and
// the per-message nonce is the prefix followed by the sequence number, so a
// sequence number is never reused under one key.
//
// # Sequence window
//
// A decoder accepts messages out of order as long as they fall within the
// configured window of the highest sequence seen, and rejects replays
// through a bitmap. Messages outside the window fail with ErrDecode and
// the session has to pair again.
//
// # State storage
//
// The engine keeps no state of its own; it reads and writes through a
// StateStore, which the session package backs with a TTL cache and an
// optional durable persister.
package transform

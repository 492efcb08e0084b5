// Package codec provides the canonical JSON encoding and content-address
// derivation used for every block this engine authors or identifies.
//
// Two rules hold everywhere:
//
//  1. A structured (JSON) block is hashed over its canonical encoding, never
//     over whatever bytes happen to arrive. Canonical form is RFC 8785 in
//     spirit: object keys sorted by UTF-16 code units, NFC-normalized strings,
//     no HTML escaping, numbers preserved as their source literals.
//  2. An opaque block is hashed over its exact bytes.
//
// The resulting identifiers are CIDv1 with a SHA2-256 multihash; structured
// blocks carry the dag-json codec tag and opaque blocks the raw codec tag, so
// the same payload under a different codec yields a different address.
package codec

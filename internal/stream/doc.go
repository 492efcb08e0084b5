// Package stream implements the client-side core of a content-addressed,
// event-sourced data network: streams are mutable logical documents
// represented as hash-linked, optionally signed commit chains whose blocks
// live in an immutable content-addressed store.
//
// The package covers four concerns:
//
//   - Identity and envelopes: StreamID (typed identifier anchored at a
//     genesis address) and Commit (one decoded chain entry, signed or anchor).
//   - Derivation: Loader recovers a stream's ordered chain from unordered
//     network responses by walking prev links, and folds it genesis-first
//     into a State. CachedLoader memoizes derived state per stream.
//   - Acceptance: Acceptor validates an externally submitted commit against
//     the persisted record and live chain, folds it in, verifies the
//     signature policy, persists the new tip, and enqueues the side effects
//     (block upload, update announcement, anchor request).
//   - Errors: a closed taxonomy of typed failures (broken chains, unknown
//     streams, rejected commits) that callers can branch on.
//
// INVARIANTS:
//   - A chain is valid only if every non-genesis commit's prev resolves to a
//     prior commit of the same chain; derivation fails with BROKEN_CHAIN
//     otherwise.
//   - State is always the left fold of the verified chain in genesis-to-tip
//     order; it is derived, never stored authoritatively.
//   - Acceptance persists before it dispatches: the record write is the
//     durability boundary, and enqueue failures never roll it back.
//
// Thread-safety: Loader and Acceptor are stateless and safe for concurrent
// use. CachedLoader is internally synchronized. Concurrent Accept calls for
// the SAME stream are not serialized here; callers must hold at most one
// accept in flight per stream or risk lost updates between chain load and
// record persist.
package stream

// Package kubo provides the network node RPC client and the bounded content
// cache fronting it.
//
// The cache is the only path the rest of the system reads blocks through:
// Get probes a fixed-capacity LRU and falls through to the node on a miss,
// de-duplicating concurrent misses per address; Put serves the block from
// the cache immediately and hands the durable upload to the task queue.
// Blocks are immutable, so the cache never invalidates, only evicts.
//
// Thread-safety: the LRU is internally synchronized and no lock is held
// across a network fetch; probe, fetch, and insert are separate critical
// sections.
package kubo

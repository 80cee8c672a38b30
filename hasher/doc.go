// Package hasher computes UnixFS-compatible content identifiers for byte
// payloads: fixed 256 KiB chunks hashed as raw leaves, grouped into a
// balanced tree of dag-pb file nodes with at most 174 links each.
//
// Two engines produce the same identifier for the same bytes:
//
//   - Sum / SumWith hash a complete in-memory buffer in one call.
//   - Builder accepts the payload through any sequence of Write calls and
//     keeps O(tree height) state.
//
// A payload of at most ChunkSize bytes yields a raw-tagged identifier
// ("bafkrei..."); anything larger yields a dag-pb root ("bafybei...").
package hasher

package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/BaSui01/memflow/types"
)

// Hashes are the first 16 hex characters of a SHA-256 digest over normalized
// (lower-cased, trimmed) input. 64 bits is plenty for per-owner dedup and
// keeps the index keys short.
const hashHexLen = 16

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:hashHexLen]
}

// FactHash identifies a subject-predicate-object triple. Case and surrounding
// whitespace do not affect the hash.
func FactHash(subject, predicate, object string) string {
	key := strings.ToLower(strings.TrimSpace(subject)) + "|" +
		strings.ToLower(strings.TrimSpace(predicate)) + "|" +
		strings.ToLower(strings.TrimSpace(object))
	return digest(key)
}

// ContentHash identifies a memory by its normalized content. It backs the
// unique (owner, hash) constraint in the durable store.
func ContentHash(content string) string {
	return digest(types.NormalizeContent(content))
}

// CoarseHash buckets content at subject+predicate granularity: only the first
// two normalized tokens contribute, so "user prefers coffee" and
// "user prefers tea" land in the same bucket. Consolidation merges within
// these buckets.
func CoarseHash(content string) string {
	fields := strings.Fields(types.NormalizeContent(content))
	if len(fields) > 2 {
		fields = fields[:2]
	}
	return digest(strings.Join(fields, "|"))
}

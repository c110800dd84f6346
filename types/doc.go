// Package types defines the shared domain types of the memflow memory
// subsystem: facts, memories, scopes, queries, conversation context, and the
// structured error taxonomy used across all layers.
package types

// Package memory implements the multi-scope agent memory subsystem: fact
// extraction from conversation turns, a tiered store (short-term buffer,
// long-term write-through cache over durable storage, semantic fact log),
// lexical retrieval with importance weighting, time-based decay, and
// consolidation of redundant memories.
package memory

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/types"
)

func TestSemanticStoreAppendOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewSemanticStore(nil)

	fact := types.Fact{OwnerID: "alice", Subject: "user", Predicate: "prefers", Object: "coffee", Kind: types.FactPreference}
	require.NoError(t, s.Append(ctx, fact))
	require.NoError(t, s.Append(ctx, fact))

	// No dedup at this layer: frequency is preserved.
	facts, err := s.Facts(ctx, "alice", FactQuery{})
	require.NoError(t, err)
	require.Len(t, facts, 2)
	require.Equal(t, 2, s.Len("alice"))
}

func TestSemanticStoreFilters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewSemanticStore(nil)

	require.NoError(t, s.Append(ctx, types.Fact{OwnerID: "alice", Subject: "user", Predicate: "prefers", Object: "coffee", Kind: types.FactPreference}))
	require.NoError(t, s.Append(ctx, types.Fact{OwnerID: "alice", Subject: "user", Predicate: "typically", Object: "works late", Kind: types.FactBehavioral}))
	require.NoError(t, s.Append(ctx, types.Fact{OwnerID: "bob", Subject: "user", Predicate: "prefers", Object: "tea", Kind: types.FactPreference}))

	prefs, err := s.Facts(ctx, "alice", FactQuery{Predicate: "prefers"})
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	require.Equal(t, "coffee", prefs[0].Object)

	behavioral, err := s.Facts(ctx, "alice", FactQuery{Kind: types.FactBehavioral})
	require.NoError(t, err)
	require.Len(t, behavioral, 1)

	// Owners are isolated.
	bobFacts, err := s.Facts(ctx, "bob", FactQuery{})
	require.NoError(t, err)
	require.Len(t, bobFacts, 1)
	require.Equal(t, "tea", bobFacts[0].Object)

	limited, err := s.Facts(ctx, "alice", FactQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestSemanticStoreWarmAndClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewSemanticStore(nil)

	s.Warm([]types.Fact{
		{OwnerID: "alice", Subject: "user", Predicate: "prefers", Object: "coffee"},
		{OwnerID: "alice", Subject: "user", Predicate: "prefers", Object: "tea"},
	})
	require.Equal(t, 2, s.Len("alice"))

	s.Clear("alice")
	facts, err := s.Facts(ctx, "alice", FactQuery{})
	require.NoError(t, err)
	require.Empty(t, facts)
}

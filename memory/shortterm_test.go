package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/types"
)

func TestShortTermEvictsOldestAtCapacity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewInMemoryShortTerm(50, nil)

	for i := 0; i < 55; i++ {
		err := st.Append(ctx, "alice", types.Message{Role: "user", Content: fmt.Sprintf("turn-%d", i)})
		require.NoError(t, err)
	}

	n, err := st.Len(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 50, n)

	all, err := st.Recent(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, all, 50)
	require.Equal(t, "turn-5", all[0].Content)
	require.Equal(t, "turn-54", all[len(all)-1].Content)
}

func TestShortTermRecentLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewInMemoryShortTerm(10, nil)

	for i := 0; i < 8; i++ {
		require.NoError(t, st.Append(ctx, "alice", types.Message{Content: fmt.Sprintf("turn-%d", i)}))
	}

	last3, err := st.Recent(ctx, "alice", 3)
	require.NoError(t, err)
	require.Len(t, last3, 3)
	require.Equal(t, "turn-5", last3[0].Content)
	require.Equal(t, "turn-7", last3[2].Content)
}

func TestShortTermClearIsIndependentPerOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewInMemoryShortTerm(10, nil)

	require.NoError(t, st.Append(ctx, "alice", types.Message{Content: "a"}))
	require.NoError(t, st.Append(ctx, "bob", types.Message{Content: "b"}))

	require.NoError(t, st.Clear(ctx, "alice"))

	n, err := st.Len(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, n)

	bobMsgs, err := st.Recent(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, bobMsgs, 1)
}

func TestShortTermEmptyOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewInMemoryShortTerm(10, nil)

	msgs, err := st.Recent(ctx, "ghost", 5)
	require.NoError(t, err)
	require.Empty(t, msgs)

	require.NoError(t, st.Clear(ctx, "ghost"))
}

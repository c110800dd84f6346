package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/types"
)

func newTestService(t *testing.T, opts ...ExtractorOption) (*Service, *fakeDurable) {
	t.Helper()
	durable := newFakeDurable()
	store := NewTieredStore(durable, TieredStoreConfig{}, nil)
	svc := NewService(
		DefaultServiceConfig(),
		store,
		NewInMemoryShortTerm(DefaultShortTermCap, nil),
		NewSemanticStore(nil),
		NewExtractor(nil, opts...),
		NewRetrieval(store, nil, nil),
		nil,
	)
	return svc, durable
}

func TestAddExtractsAndStoresEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	resp, err := svc.Add(ctx, AddRequest{
		OwnerID:  "alice",
		Messages: []types.Message{{Role: "user", Content: "I love hiking and I usually work remotely."}},
	})
	require.NoError(t, err)
	require.False(t, resp.Degraded)
	require.Len(t, resp.Facts, 2)

	var objects []string
	for _, f := range resp.Facts {
		objects = append(objects, f.Object)
	}
	require.Contains(t, objects, "hiking")
	require.Contains(t, objects, "work remotely")

	// One long-term memory per fact.
	all, _, err := svc.GetAll(ctx, "", "alice")
	require.NoError(t, err)
	require.Len(t, all, 2)

	// Recall for "hiking" surfaces the preference first.
	results, _, err := svc.Recall(ctx, types.MemoryQuery{OwnerID: "alice", Text: "hiking"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Contains(t, results[0].Memory.Content, "hiking")

	// The turn landed in the short-term buffer.
	turns, err := svc.GetShortTerm(ctx, "", "alice", 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)

	// And both facts in the semantic log.
	facts, err := svc.GetSemanticFacts(ctx, "", "alice", FactQuery{})
	require.NoError(t, err)
	require.Len(t, facts, 2)
}

func TestAddValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	cases := []AddRequest{
		{OwnerID: "", Messages: []types.Message{{Content: "hi"}}},
		{OwnerID: "alice"},
		{OwnerID: "alice", Messages: []types.Message{{Content: "hi"}}, Scope: "galactic"},
		{OwnerID: "alice", Messages: []types.Message{{Content: "hi"}}, Importance: 1.5},
	}
	for _, req := range cases {
		_, err := svc.Add(ctx, req)
		require.True(t, types.IsValidation(err), "request %+v", req)
	}
}

func TestAddRepeatBoostsInsteadOfDuplicating(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, durable := newTestService(t)

	for i := 0; i < 3; i++ {
		_, err := svc.Add(ctx, AddRequest{
			OwnerID:  "alice",
			Messages: []types.Message{{Role: "user", Content: "I love hiking."}},
		})
		require.NoError(t, err)
	}

	all, _, err := svc.GetAll(ctx, "", "alice")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, 1, durable.insertCount())
	// Two duplicate adds boosted 0.5 by 0.05 each.
	require.InDelta(t, 0.6, all[0].Importance, 1e-9)
}

func TestAddSkipsAssistantTurnsForExtraction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	resp, err := svc.Add(ctx, AddRequest{
		OwnerID: "alice",
		Messages: []types.Message{
			{Role: "assistant", Content: "I love helping with hiking plans."},
		},
	})
	require.NoError(t, err)
	require.Empty(t, resp.Facts)

	// The turn still lands in the short-term buffer.
	turns, err := svc.GetShortTerm(ctx, "", "alice", 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
}

type failingModel struct{}

func (failingModel) Complete(context.Context, string) (string, error) {
	return "", errors.New("model timeout")
}

func TestAddDegradesWhenModelFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t, WithModelStrategy(failingModel{}))

	resp, err := svc.Add(ctx, AddRequest{
		OwnerID:  "alice",
		Messages: []types.Message{{Role: "user", Content: "I love hiking."}},
	})
	require.NoError(t, err)
	require.True(t, resp.Degraded)
	require.Len(t, resp.Facts, 1)
}

func TestUpdatePermissionsAndValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	resp, err := svc.Add(ctx, AddRequest{
		OwnerID:  "alice",
		Messages: []types.Message{{Role: "user", Content: "I love hiking."}},
	})
	require.NoError(t, err)
	id := resp.Results[0].Memory.ID

	_, err = svc.Update(ctx, UpdateRequest{Requester: "mallory", OwnerID: "alice", ID: id})
	require.True(t, types.IsPermissionDenied(err))

	bad := 2.0
	_, err = svc.Update(ctx, UpdateRequest{OwnerID: "alice", ID: id, Importance: &bad})
	require.True(t, types.IsValidation(err))

	_, err = svc.Update(ctx, UpdateRequest{OwnerID: "alice", ID: "missing"})
	require.True(t, types.IsNotFound(err))

	newImportance := 0.9
	updated, err := svc.Update(ctx, UpdateRequest{OwnerID: "alice", ID: id, Importance: &newImportance})
	require.NoError(t, err)
	require.InDelta(t, 0.9, updated.Importance, 1e-9)

	content := "user prefers alpine hiking"
	updated, err = svc.Update(ctx, UpdateRequest{Requester: types.SystemOwner, OwnerID: "alice", ID: id, Content: &content})
	require.NoError(t, err)
	require.Equal(t, ContentHash(content), updated.ContentHash)
}

func TestForgetIdempotentAndPermissionChecked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	resp, err := svc.Add(ctx, AddRequest{
		OwnerID:  "alice",
		Messages: []types.Message{{Role: "user", Content: "I love hiking."}},
	})
	require.NoError(t, err)
	id := resp.Results[0].Memory.ID

	// Permission runs before existence: a stranger learns nothing.
	_, err = svc.Forget(ctx, "mallory", "alice", id)
	require.True(t, types.IsPermissionDenied(err))
	_, err = svc.Forget(ctx, "mallory", "alice", "missing")
	require.True(t, types.IsPermissionDenied(err))

	removed, err := svc.Forget(ctx, "alice", "alice", id)
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = svc.Forget(ctx, "alice", "alice", id)
	require.NoError(t, err)
	require.False(t, removed)
}

func TestGetAllPermission(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, _, err := svc.GetAll(ctx, "mallory", "alice")
	require.True(t, types.IsPermissionDenied(err))

	_, _, err = svc.GetAll(ctx, types.SystemOwner, "alice")
	require.NoError(t, err)
}

func TestConversationContextLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Add(ctx, AddRequest{
		OwnerID:   "alice",
		SessionID: "sess-1",
		Messages:  []types.Message{{Role: "user", Content: "I love hiking."}},
	})
	require.NoError(t, err)

	cc := svc.Context("sess-1")
	require.Len(t, cc.Intents(), 1)

	cc.SetTopic("outdoor plans")
	require.Equal(t, "outdoor plans", svc.Context("sess-1").Snapshot().Topic)

	svc.EndSession("sess-1")
	// A new context for the same session starts empty.
	require.Empty(t, svc.Context("sess-1").Intents())

	// Ending the session never touches long-term memories.
	all, _, err := svc.GetAll(ctx, "", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, all)
}

func TestStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Add(ctx, AddRequest{
		OwnerID:  "alice",
		Messages: []types.Message{{Role: "user", Content: "I love hiking and I usually work remotely."}},
	})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, stats.ShortTermCount)
	require.Equal(t, 2, stats.LongTermCount)
	require.Equal(t, 2, stats.FactCount)
	require.Zero(t, stats.MergedCount)
}

func TestSemanticFactsSurviveRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	durable := newFakeDurable()
	store := NewTieredStore(durable, TieredStoreConfig{}, nil)
	first := NewService(
		DefaultServiceConfig(),
		store,
		NewInMemoryShortTerm(DefaultShortTermCap, nil),
		NewSemanticStore(nil),
		NewExtractor(nil),
		NewRetrieval(store, nil, nil),
		nil,
	)

	_, err := first.Add(ctx, AddRequest{
		OwnerID:  "alice",
		Messages: []types.Message{{Role: "user", Content: "I love hiking and I usually work remotely."}},
	})
	require.NoError(t, err)

	// A fresh service over the same durable store stands in for a restarted
	// process: its semantic tier starts empty but rehydrates from the fact log.
	restartStore := NewTieredStore(durable, TieredStoreConfig{}, nil)
	second := NewService(
		DefaultServiceConfig(),
		restartStore,
		NewInMemoryShortTerm(DefaultShortTermCap, nil),
		NewSemanticStore(nil),
		NewExtractor(nil),
		NewRetrieval(restartStore, nil, nil),
		nil,
	)

	facts, err := second.GetSemanticFacts(ctx, "", "alice", FactQuery{})
	require.NoError(t, err)
	require.Len(t, facts, 2)

	stats, err := second.Stats(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, stats.FactCount)
}

func TestRecallValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, _, err := svc.Recall(ctx, types.MemoryQuery{OwnerID: "", Text: "hiking"})
	require.True(t, types.IsValidation(err))
	_, _, err = svc.Recall(ctx, types.MemoryQuery{OwnerID: "alice", Text: "  "})
	require.True(t, types.IsValidation(err))
}

func TestRecallReportsDegradedReads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, durable := newTestService(t)

	_, err := svc.Add(ctx, AddRequest{
		OwnerID:  "alice",
		Messages: []types.Message{{Role: "user", Content: "I love hiking."}},
	})
	require.NoError(t, err)

	durable.setDown(true)
	results, degraded, err := svc.Recall(ctx, types.MemoryQuery{OwnerID: "alice", Text: "hiking"})
	require.NoError(t, err)
	require.True(t, degraded)
	require.NotEmpty(t, results)
}

func TestEndToEndTimestampsUseInjectedClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fixed := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)

	durable := newFakeDurable()
	store := NewTieredStore(durable, TieredStoreConfig{Now: func() time.Time { return fixed }}, nil)
	svc := NewService(
		DefaultServiceConfig(),
		store,
		NewInMemoryShortTerm(0, nil),
		NewSemanticStore(nil),
		NewExtractor(nil, WithClock(func() time.Time { return fixed })),
		NewRetrieval(store, nil, nil),
		nil,
		WithServiceClock(func() time.Time { return fixed }),
	)

	resp, err := svc.Add(ctx, AddRequest{
		OwnerID:  "alice",
		Messages: []types.Message{{Role: "user", Content: "I love hiking."}},
	})
	require.NoError(t, err)
	require.True(t, resp.Facts[0].CreatedAt.Equal(fixed))
	require.True(t, resp.Results[0].Memory.CreatedAt.Equal(fixed))
}

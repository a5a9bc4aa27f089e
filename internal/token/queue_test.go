package token

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addN(t *testing.T, s *Store, n int) []int {
	t.Helper()
	ids := make([]int, 0, n)
	for i := 0; i < n; i++ {
		id, err := s.Add(testCredential(t, i), fmt.Sprintf("q-%d", i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestSelectRoundRobinNonStarvation(t *testing.T) {
	// Every healthy credential is returned at least floor(k/n) times
	// over k consecutive selections.
	resetHeads()
	s := NewStore(0)
	const n = 3
	addN(t, s, n)

	const k = 10
	counts := map[int]int{}
	for i := 0; i < k; i++ {
		snap, ok := s.Select(NormalFree, 0)
		require.True(t, ok)
		counts[snap.ID]++
	}
	for id := 0; id < n; id++ {
		assert.GreaterOrEqual(t, counts[id], k/n, "credential %d starved", id)
	}
}

func TestSelectSkipsBackoffAndDisabled(t *testing.T) {
	resetHeads()
	s := NewStore(0)
	ids := addN(t, s, 3)

	now := uint64(5000)
	require.NoError(t, s.Mutate(ids[0], func(rec *Record) {
		rec.Health.ReportFailure(FailureRateLimited, now)
	}))
	require.NoError(t, s.Mutate(ids[1], func(rec *Record) {
		rec.Enabled = false
	}))

	for i := 0; i < 4; i++ {
		snap, ok := s.Select(NormalFree, now)
		require.True(t, ok)
		assert.Equal(t, ids[2], snap.ID)
	}

	// Once the window elapses the first credential is selectable again.
	later := now + 120
	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		snap, ok := s.Select(NormalFree, later)
		require.True(t, ok)
		seen[snap.ID] = true
	}
	assert.True(t, seen[ids[0]])
	assert.False(t, seen[ids[1]])
}

func TestSelectPermanentBackoffSentinel(t *testing.T) {
	resetHeads()
	s := NewStore(0)
	ids := addN(t, s, 1)
	require.NoError(t, s.Mutate(ids[0], func(rec *Record) {
		rec.Health.ReportPermanent()
	}))
	_, ok := s.Select(NormalFree, ^uint64(0)-1)
	assert.False(t, ok)
}

func TestRemovePreservesCursorTarget(t *testing.T) {
	// Queue [A, B, C] with the cursor at 1 (next = B). Removing A must
	// pull the cursor back to 0 so B is still next.
	resetHeads()
	s := NewStore(0)
	ids := addN(t, s, 3)

	first, ok := s.Select(NormalFree, 0)
	require.True(t, ok)
	require.Equal(t, ids[0], first.ID) // cursor now points at B

	_, ok = s.Remove(ids[0])
	require.True(t, ok)

	next, ok := s.Select(NormalFree, 0)
	require.True(t, ok)
	assert.Equal(t, ids[1], next.ID, "removal moved the cursor off the expected next credential")
}

func TestRemoveAdjustsAllQueueCursors(t *testing.T) {
	resetHeads()
	s := NewStore(0)
	ids := addN(t, s, 3)

	// Advance two different queues past the first entry.
	for _, qt := range []QueueType{NormalFree, PrivilegedFree} {
		snap, ok := s.Select(qt, 0)
		require.True(t, ok)
		require.Equal(t, ids[0], snap.ID)
	}

	_, ok := s.Remove(ids[0])
	require.True(t, ok)

	for _, qt := range []QueueType{NormalFree, PrivilegedFree} {
		snap, ok := s.Select(qt, 0)
		require.True(t, ok)
		assert.Equal(t, ids[1], snap.ID, "queue %s cursor drifted", qt)
	}
}

func TestSelectBillingClassSplit(t *testing.T) {
	resetHeads()
	s := NewStore(0)
	ids := addN(t, s, 2)
	require.NoError(t, s.Mutate(ids[1], func(rec *Record) {
		rec.Billing = BillingPaid
	}))

	paid, ok := s.Select(NormalPaid, 0)
	require.True(t, ok)
	assert.Equal(t, ids[1], paid.ID)

	free, ok := s.Select(NormalFree, 0)
	require.True(t, ok)
	assert.Equal(t, ids[0], free.ID)
}

func TestSelectEmptyQueue(t *testing.T) {
	resetHeads()
	s := NewStore(0)
	_, ok := s.Select(NormalFree, 0)
	assert.False(t, ok)
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnguyenfetchai/study-assistant/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSlotPutGetClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	slot, err := s.GetSlot(ctx, "agent://gateway", "current")
	require.NoError(t, err)
	assert.Nil(t, slot)

	require.NoError(t, s.PutSlot(ctx, &domain.SessionSlot{
		Agent:          "agent://gateway",
		Key:            "current",
		Sender:         "user://alice",
		MessageID:      "msg_1",
		LastRequest:    "question",
		WaitingForInit: true,
	}))

	slot, err = s.GetSlot(ctx, "agent://gateway", "current")
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, "user://alice", slot.Sender)
	assert.Equal(t, "msg_1", slot.MessageID)
	assert.True(t, slot.WaitingForInit)

	require.NoError(t, s.ClearSlot(ctx, "agent://gateway", "current"))
	slot, err = s.GetSlot(ctx, "agent://gateway", "current")
	require.NoError(t, err)
	assert.Nil(t, slot)
}

func TestSlotOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSlot(ctx, &domain.SessionSlot{
		Agent: "agent://gateway", Key: "current", Sender: "user://alice", LastRequest: "first",
	}))
	require.NoError(t, s.PutSlot(ctx, &domain.SessionSlot{
		Agent: "agent://gateway", Key: "current", Sender: "user://bob", LastRequest: "second",
	}))

	slot, err := s.GetSlot(ctx, "agent://gateway", "current")
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, "user://bob", slot.Sender)
	assert.Equal(t, "second", slot.LastRequest)
}

func TestSlotsAreKeyedPerAgent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSlot(ctx, &domain.SessionSlot{Agent: "agent://gateway", Key: "current", Sender: "a"}))
	require.NoError(t, s.PutSlot(ctx, &domain.SessionSlot{Agent: "agent://problem", Key: "current", Sender: "b"}))

	slot, err := s.GetSlot(ctx, "agent://problem", "current")
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, "b", slot.Sender)

	require.NoError(t, s.ClearAgent(ctx, "agent://gateway"))
	slot, err = s.GetSlot(ctx, "agent://gateway", "current")
	require.NoError(t, err)
	assert.Nil(t, slot)

	slot, err = s.GetSlot(ctx, "agent://problem", "current")
	require.NoError(t, err)
	assert.NotNil(t, slot)
}

func TestResultsLatestWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Now().Add(-time.Second)

	r, err := s.LatestResult(ctx, "user://alice", start)
	require.NoError(t, err)
	assert.Nil(t, r)

	require.NoError(t, s.PutResult(ctx, &domain.Result{
		UserAddr: "user://alice", Kind: domain.ResultKindText, Data: "first answer",
	}))
	require.NoError(t, s.PutResult(ctx, &domain.Result{
		UserAddr: "user://alice", Kind: domain.ResultKindImage, Data: "aW1n", ContentType: "image/png",
	}))

	r, err = s.LatestResult(ctx, "user://alice", start)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, domain.ResultKindImage, r.Kind)
	assert.Equal(t, "image/png", r.ContentType)

	// other users see nothing
	r, err = s.LatestResult(ctx, "user://bob", start)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestResultsAfterFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutResult(ctx, &domain.Result{
		UserAddr: "user://alice", Kind: domain.ResultKindText, Data: "stale",
	}))

	r, err := s.LatestResult(ctx, "user://alice", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, r)
}

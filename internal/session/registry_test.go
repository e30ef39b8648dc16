package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/docgenius/internal/indexer"
	"github.com/hyperjump/docgenius/internal/ingest"
	"github.com/hyperjump/docgenius/internal/llm"
	"github.com/hyperjump/docgenius/internal/models"
)

func newTestRegistry(t *testing.T, loader *fakeLoader) *Registry {
	return NewRegistry(time.Hour, time.Minute, func(id string) *Session {
		return newTestSession(t, loader, &llm.Stub{Response: "ok"}, WithID(id))
	}, nil)
}

func TestRegistry_CreateGetDelete(t *testing.T) {
	r := newTestRegistry(t, &fakeLoader{docs: capitalDocs()})
	s := r.Create()
	require.NotEmpty(t, s.ID())
	assert.Equal(t, StateNoIndex, s.State())
	assert.Equal(t, 1, r.Count())

	got, ok := r.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)

	r.Delete(s.ID())
	_, ok = r.Get(s.ID())
	assert.False(t, ok)
	assert.NotEqual(t, s.ID(), r.Create().ID())
}

func TestRegistry_BaseAndBroadcast(t *testing.T) {
	loader := &fakeLoader{docs: capitalDocs()}
	r := newTestRegistry(t, loader)
	first := r.Create()

	builder := r.Create()
	_, _, err := builder.Build(context.Background(), ingest.Sources{})
	require.NoError(t, err)
	snap := builder.Snapshot()

	assert.Equal(t, 1, r.Broadcast(snap))
	assert.Same(t, snap, first.Snapshot())
	assert.Same(t, snap, builder.Snapshot())
	assert.Same(t, snap, r.Base())

	late := r.Create()
	assert.Equal(t, StateIndexReady, late.State())
	assert.Same(t, snap, late.Snapshot())
}

func TestRegistry_BroadcastKeepsSessionBuiltIndex(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	loaders := map[string]*fakeLoader{}
	r := NewRegistry(time.Hour, time.Minute, func(id string) *Session {
		l := &fakeLoader{docs: capitalDocs()}
		mu.Lock()
		loaders[id] = l
		mu.Unlock()
		return newTestSession(t, l, &llm.Stub{Response: "ok"}, WithID(id))
	}, nil)

	empty := r.Create()

	folder := newTestSession(t, &fakeLoader{docs: capitalDocs()}, &llm.Stub{})
	_, _, err := folder.Build(ctx, ingest.Sources{})
	require.NoError(t, err)
	base1 := folder.Snapshot()
	r.SetBase(base1)

	follower := r.Create()
	require.Same(t, base1, follower.Snapshot())

	own := r.Create()
	mu.Lock()
	loaders[own.ID()].set([]models.Document{{ID: "it", Source: "rome.txt", Text: "Rome is the capital of Italy."}}, nil)
	mu.Unlock()
	_, _, err = own.Build(ctx, ingest.Sources{URLs: []string{"https://example.com/rome"}})
	require.NoError(t, err)
	ownSnap := own.Snapshot()

	_, _, err = folder.Build(ctx, ingest.Sources{})
	require.NoError(t, err)
	base2 := folder.Snapshot()
	require.NotSame(t, base1, base2)

	assert.Equal(t, 2, r.Broadcast(base2))
	assert.Same(t, base2, r.Base())
	assert.Same(t, base2, follower.Snapshot())
	assert.Same(t, base2, empty.Snapshot())
	assert.Same(t, ownSnap, own.Snapshot())

	res, err := own.Retriever().Retrieve(ctx, "capital of Italy", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "rome.txt", res[0].Chunk.SourceID)
}

func TestSession_Replace(t *testing.T) {
	s := newTestSession(t, &fakeLoader{docs: capitalDocs()}, &llm.Stub{})
	_, _, err := s.Build(context.Background(), ingest.Sources{})
	require.NoError(t, err)
	built := s.Snapshot()
	other := &indexer.Snapshot{}

	ev, ok := s.Replace(nil, other)
	assert.False(t, ok)
	assert.Equal(t, Event{}, ev)
	assert.Same(t, built, s.Snapshot())

	ev, ok = s.Replace(built, other)
	assert.True(t, ok)
	assert.Equal(t, EventIndexChanged, ev.Kind)
	assert.Same(t, other, s.Snapshot())
}

func TestRegistry_Expiry(t *testing.T) {
	r := NewRegistry(10*time.Millisecond, time.Millisecond, func(id string) *Session {
		return newTestSession(t, &fakeLoader{}, &llm.Stub{}, WithID(id))
	}, nil)
	s := r.Create()
	time.Sleep(30 * time.Millisecond)
	_, ok := r.Get(s.ID())
	assert.False(t, ok)
}

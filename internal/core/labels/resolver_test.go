package labels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/kennel/internal/core/entity"
)

type fakeRemote struct {
	mu      sync.Mutex
	records map[string][]entity.Record
	calls   int
	err     error
}

func (f *fakeRemote) FindDictionaryValue(_ context.Context, table string, m entity.Matcher) (*entity.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.records[table] {
		if (m.ID != "" && r.ID == m.ID) || (m.Label != "" && Normalize(r.Name) == m.Label) {
			rec := r
			return &rec, nil
		}
	}
	return nil, nil
}

type failingCache struct {
	*MemoryCache
}

func (failingCache) Upsert(context.Context, ...Entry) error {
	return errors.New("disk full")
}

var petTypes = Ref{Table: "pet_types", IDField: "id", NameField: "name"}

func newTestResolver(cache Cache, remote entity.DictionarySource) *Resolver {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewResolver(cache, remote, zerolog.Nop(), WithClock(func() time.Time { return fixed }))
}

func TestResolver_LocalHit(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	remote := &fakeRemote{}
	r := newTestResolver(cache, remote)

	require.NoError(t, r.Warm(ctx, petTypes, []entity.Record{
		{ID: "abc", Name: "Dogs"},
		{ID: "def", Name: "Cats"},
	}))

	id, ok, err := r.IDFor(ctx, petTypes, "dogs")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	label, err := r.LabelFor(ctx, petTypes, "def")
	require.NoError(t, err)
	assert.Equal(t, "cats", label)

	assert.Equal(t, 0, remote.calls)
}

func TestResolver_IDForNormalizesInput(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	r := newTestResolver(cache, nil)
	require.NoError(t, r.Warm(ctx, petTypes, []entity.Record{{ID: "gr", Name: "Golden Retriever"}}))

	id, ok, err := r.IDFor(ctx, petTypes, "Golden Retriever")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "gr", id)
}

func TestResolver_EmptyScopeFallsBackToRemoteAndCaches(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	remote := &fakeRemote{records: map[string][]entity.Record{
		"pet_types": {{ID: "abc", Name: "Dogs"}},
	}}
	r := newTestResolver(cache, remote)

	id, ok, err := r.IDFor(ctx, petTypes, "dogs")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
	assert.Equal(t, 1, remote.calls)

	entry, found, err := cache.ByID(ctx, "pet_types", "abc")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ProvenanceRemote, entry.Provenance)
	assert.Equal(t, "dogs", entry.Label)

	// second lookup answered locally
	_, _, err = r.IDFor(ctx, petTypes, "dogs")
	require.NoError(t, err)
	assert.Equal(t, 1, remote.calls)
}

func TestResolver_NonEmptyScopeMissSkipsRemote(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	remote := &fakeRemote{records: map[string][]entity.Record{
		"pet_types": {{ID: "xyz", Name: "Ferrets"}},
	}}
	r := newTestResolver(cache, remote)
	require.NoError(t, r.Warm(ctx, petTypes, []entity.Record{{ID: "abc", Name: "Dogs"}}))

	id, ok, err := r.IDFor(ctx, petTypes, "ferrets")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Equal(t, 0, remote.calls, "populated scope means the value is absent")

	label, err := r.LabelFor(ctx, petTypes, "xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", label, "unknown ids pass through")
}

func TestResolver_RemoteError(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{err: errors.New("timeout")}
	r := newTestResolver(NewMemoryCache(), remote)

	_, ok, err := r.IDFor(ctx, petTypes, "dogs")
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, entity.IsFetchError(err))

	label, err := r.LabelFor(ctx, petTypes, "abc")
	require.Error(t, err)
	assert.Equal(t, "abc", label)
}

func TestResolver_CacheWriteFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{records: map[string][]entity.Record{
		"pet_types": {{ID: "abc", Name: "Dogs"}},
	}}
	r := newTestResolver(failingCache{NewMemoryCache()}, remote)

	label, err := r.LabelFor(ctx, petTypes, "abc")
	require.NoError(t, err)
	assert.Equal(t, "dogs", label)
}

func TestResolver_CustomFields(t *testing.T) {
	ctx := context.Background()
	ref := Ref{Table: "countries", IDField: "code", NameField: "title"}
	remote := &fakeRemote{}
	r := newTestResolver(NewMemoryCache(), remote)

	require.NoError(t, r.Warm(ctx, ref, []entity.Record{
		{ID: "row-1", Fields: map[string]any{"code": "NZ", "title": "New Zealand"}},
	}))

	id, ok, err := r.IDFor(ctx, ref, "new-zealand")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "NZ", id)
}

func TestResolver_NoTableIsPassthrough(t *testing.T) {
	r := newTestResolver(NewMemoryCache(), nil)

	label, err := r.LabelFor(context.Background(), Ref{}, "raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", label)

	_, ok, err := r.IDFor(context.Background(), Ref{}, "raw")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_UpsertKeepsInsertionTime(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	first := time.Unix(100, 0)

	require.NoError(t, c.Upsert(ctx, Entry{Table: "t", ID: "1", Label: "a", InsertedAt: first}))
	require.NoError(t, c.Upsert(ctx, Entry{Table: "t", ID: "1", Label: "b", InsertedAt: time.Unix(200, 0)}))

	e, ok, err := c.ByID(ctx, "t", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", e.Label)
	assert.Equal(t, first, e.InsertedAt)

	n, err := c.Count(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestResolver_UnusableLabelsWriteTheID(t *testing.T) {
	ctx := context.Background()
	r := newTestResolver(NewMemoryCache(), nil)
	require.NoError(t, r.Warm(ctx, petTypes, []entity.Record{
		{ID: "abc", Name: "Dogs"},
		{ID: "uk1", Name: "Собаки"},
		{ID: "uk2", Name: "Коти"},
		{ID: "r1", Name: "Rex"},
		{ID: "r2", Name: "rex!"},
	}))

	tests := []struct {
		id    string
		label string
	}{
		{id: "abc", label: "dogs"},
		{id: "uk1", label: "uk1"},
		{id: "uk2", label: "uk2"},
		{id: "r1", label: "r1"},
		{id: "r2", label: "r2"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			label, err := r.LabelFor(ctx, petTypes, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.label, label)

			id, ok, err := r.IDFor(ctx, petTypes, label)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestResolver_IDForNeverMatchesEmptyLabel(t *testing.T) {
	ctx := context.Background()
	r := newTestResolver(NewMemoryCache(), nil)
	require.NoError(t, r.Warm(ctx, petTypes, []entity.Record{{ID: "cyr", Name: "Коти"}}))

	for _, token := range []string{"!!!", "Коти", "   "} {
		id, ok, err := r.IDFor(ctx, petTypes, token)
		require.NoError(t, err)
		assert.False(t, ok, token)
		assert.Empty(t, id, token)
	}
}

type slowRemote struct {
	fakeRemote
	release chan struct{}
}

func (s *slowRemote) FindDictionaryValue(ctx context.Context, table string, m entity.Matcher) (*entity.Record, error) {
	<-s.release
	return s.fakeRemote.FindDictionaryValue(ctx, table, m)
}

func TestResolver_ConcurrentLookupsShareOneFetch(t *testing.T) {
	ctx := context.Background()
	remote := &slowRemote{
		fakeRemote: fakeRemote{records: map[string][]entity.Record{"pet_types": {{ID: "abc", Name: "Dogs"}}}},
		release:    make(chan struct{}),
	}
	r := newTestResolver(failingCache{NewMemoryCache()}, remote)

	const callers = 8
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
		ids     [callers]string
	)
	started.Add(callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			ids[i], _, _ = r.IDFor(ctx, petTypes, "dogs")
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(remote.release)
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, "abc", id)
	}
	assert.Less(t, remote.calls, callers, "in-flight lookups are shared")
}

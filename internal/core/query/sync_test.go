package query

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/labels"
)

var petFields = []FieldConfig{
	{ID: "pet_type_id", Slug: "type", ReferencedTable: "pet_types"},
	{ID: "breed_id", Slug: "breed", ReferencedTable: "breeds", DependsOn: []string{"pet_type_id"}},
	{ID: "color", Slug: "color"},
	{ID: "country_id", Slug: "country", ReferencedTable: "countries"},
	{ID: "city_id", Slug: "city", ReferencedTable: "cities", DisabledUntil: "country_id"},
}

var petSorts = []SortOption{
	{ID: "name-asc", Field: "name", Direction: entity.Asc, Default: true},
	{ID: "name-desc", Field: "name", Direction: entity.Desc},
	{ID: "age-desc", Field: "age", Direction: entity.Desc, TieBreaker: "name"},
}

func newTestResolver(t *testing.T) *labels.Resolver {
	t.Helper()
	r := labels.NewResolver(labels.NewMemoryCache(), nil, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, r.Warm(ctx, labels.Ref{Table: "pet_types"}, []entity.Record{
		{ID: "abc", Name: "Dogs"},
		{ID: "def", Name: "Cats"},
	}))
	require.NoError(t, r.Warm(ctx, labels.Ref{Table: "breeds"}, []entity.Record{
		{ID: "b1", Name: "Golden Retriever"},
	}))
	require.NoError(t, r.Warm(ctx, labels.Ref{Table: "countries"}, []entity.Record{
		{ID: "c1", Name: "Côte d'Ivoire"},
	}))
	return r
}

func newTestSync(t *testing.T) *Synchronizer {
	t.Helper()
	return NewSynchronizer("pets", petFields, petSorts, newTestResolver(t), zerolog.Nop(), Options{
		Views: []string{"cards", "table"},
	})
}

func TestParse_ResolvesSlugLabelsAndSort(t *testing.T) {
	s := newTestSync(t)

	got, err := s.Parse(context.Background(), url.Values{
		"type": {"dogs"},
		"sort": {"name-desc"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"pet_type_id": "abc"}, got.State.Filters)
	assert.Equal(t, entity.Sort{Field: "name", Direction: entity.Desc, TieBreaker: "id"}, got.State.Sort)
	assert.Equal(t, "cards", got.View)
	assert.False(t, got.Rewritten)
	assert.NoError(t, got.ResolveErr)
}

func TestParse_MatchesRawFieldID(t *testing.T) {
	s := newTestSync(t)

	got, err := s.Parse(context.Background(), url.Values{"color": {"brown"}, "breed_id": {"golden-retriever"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"color": "brown", "breed_id": "b1"}, got.State.Filters)
}

func TestParse_SlugWinsOverID(t *testing.T) {
	s := newTestSync(t)

	got, err := s.Parse(context.Background(), url.Values{"type": {"cats"}, "pet_type_id": {"dogs"}})
	require.NoError(t, err)
	assert.Equal(t, "def", got.State.Filters["pet_type_id"])
	assert.NotEmpty(t, got.Warnings)
}

func TestParse_DropsUnknownKeys(t *testing.T) {
	s := newTestSync(t)

	got, err := s.Parse(context.Background(), url.Values{"bogus": {"1"}, "color": {"red"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"color": "red"}, got.State.Filters)
	require.Len(t, got.Warnings, 1)
	assert.Contains(t, got.Warnings[0], "bogus")
}

func TestParse_PassthroughOnMiss(t *testing.T) {
	s := newTestSync(t)

	got, err := s.Parse(context.Background(), url.Values{"type": {"9f2c"}})
	require.NoError(t, err)
	assert.Equal(t, "9f2c", got.State.Filters["pet_type_id"])
}

func TestParse_SortFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		sorts  []SortOption
		values url.Values
		want   entity.Sort
	}{
		{
			name:   "default flagged",
			sorts:  petSorts,
			values: url.Values{},
			want:   entity.Sort{Field: "name", Direction: entity.Asc, TieBreaker: "id"},
		},
		{
			name:   "unknown id uses default",
			sorts:  petSorts,
			values: url.Values{"sort": {"nope"}},
			want:   entity.Sort{Field: "name", Direction: entity.Asc, TieBreaker: "id"},
		},
		{
			name:   "first when none flagged",
			sorts:  []SortOption{{ID: "age-desc", Field: "age", Direction: entity.Desc}},
			values: url.Values{},
			want:   entity.Sort{Field: "age", Direction: entity.Desc, TieBreaker: "id"},
		},
		{
			name:   "option tie breaker",
			sorts:  petSorts,
			values: url.Values{"sort": {"age-desc"}},
			want:   entity.Sort{Field: "age", Direction: entity.Desc, TieBreaker: "name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSynchronizer("pets", petFields, tt.sorts, nil, zerolog.Nop(), Options{})
			got, err := s.Parse(context.Background(), tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.State.Sort)
		})
	}
}

func TestParse_MigratesLegacySort(t *testing.T) {
	s := newTestSync(t)

	got, err := s.Parse(context.Background(), url.Values{"sortBy": {"name"}, "sortDir": {"desc"}})
	require.NoError(t, err)
	assert.True(t, got.Rewritten)
	assert.Equal(t, entity.Desc, got.State.Sort.Direction)
	assert.Empty(t, got.State.Filters)

	out, err := s.Serialize(context.Background(), got.State, got.View)
	require.NoError(t, err)
	assert.Equal(t, url.Values{"sort": {"name-desc"}}, out)
}

func TestParse_DisabledUntilIgnored(t *testing.T) {
	s := newTestSync(t)

	got, err := s.Parse(context.Background(), url.Values{"city": {"abidjan"}})
	require.NoError(t, err)
	assert.Empty(t, got.State.Filters)

	got, err = s.Parse(context.Background(), url.Values{"city": {"abidjan"}, "country": {"cote-divoire"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"country_id": "c1", "city_id": "abidjan"}, got.State.Filters)
}

func TestParse_RequiredDefault(t *testing.T) {
	fields := []FieldConfig{{ID: "status", Required: true, Default: "active"}}
	s := NewSynchronizer("contacts", fields, nil, nil, zerolog.Nop(), Options{})

	got, err := s.Parse(context.Background(), url.Values{})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"status": "active"}, got.State.Filters)
}

func TestParse_SearchSlug(t *testing.T) {
	s := NewSynchronizer("pets", petFields, petSorts, nil, zerolog.Nop(), Options{SearchSlug: "q"})

	got, err := s.Parse(context.Background(), url.Values{"q": {" rex "}})
	require.NoError(t, err)
	assert.Equal(t, "rex", got.State.Search)
	assert.Empty(t, got.Warnings)
}

func TestParse_UnknownViewFallsBack(t *testing.T) {
	s := newTestSync(t)

	got, err := s.Parse(context.Background(), url.Values{"view": {"carousel"}})
	require.NoError(t, err)
	assert.Equal(t, "cards", got.View)
	assert.NotEmpty(t, got.Warnings)
}

type erroringResolver struct{}

func (erroringResolver) LabelFor(_ context.Context, _ labels.Ref, id string) (string, error) {
	return id, errors.New("offline")
}

func (erroringResolver) IDFor(context.Context, labels.Ref, string) (string, bool, error) {
	return "", false, errors.New("offline")
}

func TestParse_ResolveErrorDegradesToPassthrough(t *testing.T) {
	s := NewSynchronizer("pets", petFields, petSorts, erroringResolver{}, zerolog.Nop(), Options{})

	got, err := s.Parse(context.Background(), url.Values{"type": {"dogs"}})
	require.NoError(t, err)
	assert.Equal(t, "dogs", got.State.Filters["pet_type_id"])
	assert.Error(t, got.ResolveErr)
}

func TestParse_CanceledContext(t *testing.T) {
	s := NewSynchronizer("pets", petFields, petSorts, erroringResolver{}, zerolog.Nop(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Parse(ctx, url.Values{"type": {"dogs"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSerialize_WritesLabelsAndOmitsDefaults(t *testing.T) {
	s := newTestSync(t)

	state := State{
		Filters: map[string]string{"pet_type_id": "abc", "color": "brown"},
		Sort:    entity.Sort{Field: "name", Direction: entity.Asc, TieBreaker: "id"},
		Search:  "rex",
	}
	out, err := s.Serialize(context.Background(), state, "table")
	require.NoError(t, err)
	assert.Equal(t, url.Values{
		"type":   {"dogs"},
		"color":  {"brown"},
		"search": {"rex"},
		"view":   {"table"},
	}, out)
}

func TestRoundTrip(t *testing.T) {
	s := newTestSync(t)
	ctx := context.Background()

	states := []State{
		{Filters: map[string]string{"pet_type_id": "abc"}},
		{Filters: map[string]string{"pet_type_id": "def", "breed_id": "b1", "color": "black"}, Search: "rex"},
		{Filters: map[string]string{"country_id": "c1"}},
		{Filters: map[string]string{}, Sort: s.SortByID("age-desc")},
	}

	for _, st := range states {
		if st.Sort.Field == "" {
			st.Sort = s.SortByID("")
		}
		values, err := s.Serialize(ctx, st, "cards")
		require.NoError(t, err)

		got, err := s.Parse(ctx, values)
		require.NoError(t, err)
		assert.True(t, st.Equal(got.State), "round trip %v -> %v -> %v", st, values, got.State)
	}
}

func TestSetFilter_ClearsDependents(t *testing.T) {
	st := State{Filters: map[string]string{"pet_type_id": "abc", "breed_id": "b1", "color": "red"}}

	got := SetFilter(st, petFields, "pet_type_id", "def")
	assert.Equal(t, map[string]string{"pet_type_id": "def", "color": "red"}, got.Filters)
	assert.Equal(t, "b1", st.Filters["breed_id"], "input state is not mutated")

	same := SetFilter(got, petFields, "pet_type_id", "def")
	assert.Equal(t, got.Filters, same.Filters)

	cleared := SetFilter(State{Filters: map[string]string{"country_id": "c1", "city_id": "x"}}, petFields, "country_id", "")
	assert.Empty(t, cleared.Filters)
}

func TestSlugCollisions(t *testing.T) {
	fields := []FieldConfig{
		{ID: "owner", Slug: "who"},
		{ID: "who"},
		{ID: "color", Slug: "color"},
	}
	assert.Equal(t, []string{"who"}, SlugCollisions(fields))
	assert.Empty(t, SlugCollisions(petFields))
}

func TestState_Signature(t *testing.T) {
	a := State{Filters: map[string]string{"a": "1", "b": "2"}, Sort: entity.Sort{Field: "name"}}
	b := State{Filters: map[string]string{"b": "2", "a": "1"}, Sort: entity.Sort{Field: "name"}}
	assert.Equal(t, a.Signature(), b.Signature())

	b.Search = "x"
	assert.NotEqual(t, a.Signature(), b.Signature())
	assert.False(t, a.Unfiltered())
	assert.True(t, State{}.Unfiltered())
}

func TestFieldByKey(t *testing.T) {
	s := newTestSync(t)

	for key, want := range map[string]string{"type": "pet_type_id", "breed_id": "breed_id", "color": "color"} {
		f, ok := s.FieldByKey(key)
		require.True(t, ok, key)
		assert.Equal(t, want, f.ID)
	}

	_, ok := s.FieldByKey("owner")
	assert.False(t, ok)
}

func TestRoundTrip_UnusableLabels(t *testing.T) {
	ctx := context.Background()
	r := labels.NewResolver(labels.NewMemoryCache(), nil, zerolog.Nop())
	require.NoError(t, r.Warm(ctx, labels.Ref{Table: "pet_types"}, []entity.Record{
		{ID: "abc", Name: "Dogs"},
		{ID: "uk1", Name: "Собаки"},
		{ID: "uk2", Name: "Коти"},
	}))
	require.NoError(t, r.Warm(ctx, labels.Ref{Table: "breeds"}, []entity.Record{
		{ID: "b1", Name: "Shiba Inu"},
		{ID: "b2", Name: "shiba  inu!"},
	}))
	s := NewSynchronizer("pets", petFields, petSorts, r, zerolog.Nop(), Options{Views: []string{"cards"}})

	states := []State{
		{Filters: map[string]string{"pet_type_id": "uk2"}},
		{Filters: map[string]string{"pet_type_id": "uk1", "breed_id": "b2"}},
		{Filters: map[string]string{"pet_type_id": "abc", "breed_id": "b1"}},
	}
	for _, st := range states {
		st.Sort = s.SortByID("")
		values, err := s.Serialize(ctx, st, "cards")
		require.NoError(t, err)
		for _, v := range values {
			assert.NotEmpty(t, v[0], "no empty segment in %v", values)
		}

		got, err := s.Parse(ctx, values)
		require.NoError(t, err)
		assert.True(t, st.Equal(got.State), "round trip %v -> %v -> %v", st, values, got.State)
	}
}

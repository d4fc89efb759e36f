// Package seed loads demo data and YAML fixtures into a store and warms the
// label cache for every dictionary table the configured collections use.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/colonyops/kennel/internal/core/config"
	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/labels"
)

// namespace derives stable record ids so re-seeding upserts instead of
// duplicating.
var namespace = uuid.MustParse("6f1c1b9e-2d1a-4c4e-9a51-0b7c7f1f5e42")

// StableID returns the deterministic id of a named record.
func StableID(collection, name string) string {
	return uuid.NewSHA1(namespace, []byte(collection+"/"+name)).String()
}

// Sink receives seeded records. Both the SQL entity store and the memory
// provider implement it.
type Sink interface {
	Put(ctx context.Context, collection string, records ...entity.Record) error
}

// Warmer records local dictionary values.
type Warmer interface {
	Warm(ctx context.Context, ref labels.Ref, records []entity.Record) error
}

// Fixture is one YAML fixture document.
type Fixture struct {
	Collection string          `yaml:"collection"`
	Records    []entity.Record `yaml:"records"`
}

// Summary reports what a seed run wrote.
type Summary struct {
	Records map[string]int
	Warmed  []string
}

// Total returns the number of records written.
func (s Summary) Total() int {
	n := 0
	for _, c := range s.Records {
		n += c
	}
	return n
}

// LoadFixtures reads every YAML file matching pattern. Patterns support
// doublestar syntax, e.g. "fixtures/**/*.yaml". A file may hold several
// documents separated by "---".
func LoadFixtures(pattern string) ([]Fixture, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid fixture pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no fixtures match %q", pattern)
	}
	slices.Sort(paths)

	var out []Fixture
	for _, p := range paths {
		fixtures, err := readFixtureFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, fixtures...)
	}
	return out, nil
}

func readFixtureFile(path string) ([]Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []Fixture
	dec := yaml.NewDecoder(f)
	for i := 0; ; i++ {
		var fx Fixture
		err := dec.Decode(&fx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s document %d: %w", path, i, err)
		}
		if fx.Collection == "" {
			return nil, fmt.Errorf("parse %s document %d: collection is required", path, i)
		}
		out = append(out, fx)
	}
	return out, nil
}

// Seeder writes fixtures to a sink and warms dictionaries.
type Seeder struct {
	sink        Sink
	warmer      Warmer
	collections []config.Collection
	log         zerolog.Logger
}

// New creates a Seeder. warmer may be nil.
func New(sink Sink, warmer Warmer, collections []config.Collection, log zerolog.Logger) *Seeder {
	return &Seeder{sink: sink, warmer: warmer, collections: collections, log: log}
}

// Apply writes fixtures in order. Records without an id get StableID; records
// without a slug get the normalized name. Repeated names within a collection
// get a "-2", "-3", ... suffix before either is derived.
func (s *Seeder) Apply(ctx context.Context, fixtures []Fixture) (Summary, error) {
	sum := Summary{Records: map[string]int{}}
	byTable := map[string][]entity.Record{}

	names := map[string]map[string]int{}
	for _, fx := range fixtures {
		seen := names[fx.Collection]
		if seen == nil {
			seen = map[string]int{}
			names[fx.Collection] = seen
		}
		recs := make([]entity.Record, 0, len(fx.Records))
		for _, r := range fx.Records {
			key := uniqueName(seen, r.Name)
			if r.ID == "" {
				r.ID = StableID(fx.Collection, key)
			}
			if r.Slug == "" {
				r.Slug = labels.Normalize(key)
			}
			recs = append(recs, r)
		}
		if err := s.sink.Put(ctx, fx.Collection, recs...); err != nil {
			return sum, fmt.Errorf("seed %s: %w", fx.Collection, err)
		}
		sum.Records[fx.Collection] += len(recs)
		byTable[fx.Collection] = append(byTable[fx.Collection], recs...)
		s.log.Debug().Str("collection", fx.Collection).Int("records", len(recs)).Msg("seeded")
	}

	if s.warmer == nil {
		return sum, nil
	}
	for _, ref := range s.dictionaryRefs() {
		recs, ok := byTable[ref.Table]
		if !ok {
			continue
		}
		if err := s.warmer.Warm(ctx, ref, recs); err != nil {
			return sum, err
		}
		sum.Warmed = append(sum.Warmed, ref.Table)
	}
	return sum, nil
}

// uniqueName returns name on its first use and name-N on the Nth.
func uniqueName(seen map[string]int, name string) string {
	seen[name]++
	if n := seen[name]; n > 1 {
		return fmt.Sprintf("%s-%d", name, n)
	}
	return name
}

// dictionaryRefs returns one reference per referenced table, first
// declaration wins.
func (s *Seeder) dictionaryRefs() []labels.Ref {
	var refs []labels.Ref
	seen := map[string]bool{}
	for _, c := range s.collections {
		for _, f := range c.Filters {
			if !f.IsDictionary() || seen[f.ReferencedTable] {
				continue
			}
			seen[f.ReferencedTable] = true
			refs = append(refs, f.Ref())
		}
	}
	return refs
}

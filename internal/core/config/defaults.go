package config

import (
	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/query"
	"github.com/colonyops/kennel/internal/core/viewport"
)

func nameSorts() []query.SortOption {
	return []query.SortOption{
		{ID: "name-asc", Label: "Name A-Z", Field: "name", Direction: entity.Asc, Default: true},
		{ID: "name-desc", Label: "Name Z-A", Field: "name", Direction: entity.Desc},
	}
}

func listView() ViewConfig {
	return ViewConfig{
		View:     viewport.View{ID: "list", Type: viewport.TypeList, ItemSize: 1, Overscan: 5, Dividers: true},
		Renderer: "row",
	}
}

func cardsView() ViewConfig {
	return ViewConfig{
		View:     viewport.View{ID: "cards", Type: viewport.TypeCards, ItemSize: 4, Overscan: 2},
		Renderer: "card",
	}
}

// DefaultCollections returns the built-in breeds, pets, kennels and contacts
// collections.
func DefaultCollections() []Collection {
	return []Collection{
		{
			ID:    "breeds",
			Title: "Breeds",
			Views: []ViewConfig{cardsView(), listView()},
			Filters: []query.FieldConfig{
				{ID: "pet_type_id", Slug: "type", Label: "Type", ReferencedTable: "pet_types"},
				{ID: "size", Slug: "size", Label: "Size"},
			},
			Sorts:  nameSorts(),
			Fields: []string{"size", "origin"},
		},
		{
			ID:    "pets",
			Title: "Pets",
			Views: []ViewConfig{listView(), cardsView()},
			Filters: []query.FieldConfig{
				{ID: "pet_type_id", Slug: "type", Label: "Type", ReferencedTable: "pet_types"},
				{ID: "breed_id", Slug: "breed", Label: "Breed", ReferencedTable: "breeds", DependsOn: []string{"pet_type_id"}},
				{ID: "kennel_id", Slug: "kennel", Label: "Kennel", ReferencedTable: "kennels"},
				{ID: "color", Slug: "color", Label: "Color"},
			},
			Sorts: append(nameSorts(),
				query.SortOption{ID: "age-desc", Label: "Oldest first", Field: "age", Direction: entity.Desc, TieBreaker: "id"},
			),
			Fields: []string{"breed", "color", "age"},
		},
		{
			ID:    "kennels",
			Title: "Kennels",
			Views: []ViewConfig{listView()},
			Filters: []query.FieldConfig{
				{ID: "country_id", Slug: "country", Label: "Country", ReferencedTable: "countries"},
				{ID: "city_id", Slug: "city", Label: "City", ReferencedTable: "cities", DependsOn: []string{"country_id"}, DisabledUntil: "country_id"},
			},
			Sorts:  nameSorts(),
			Fields: []string{"city", "country"},
		},
		{
			ID:         "contacts",
			Title:      "Contacts",
			SearchSlug: "q",
			Views:      []ViewConfig{listView()},
			Filters: []query.FieldConfig{
				{ID: "kennel_id", Slug: "kennel", Label: "Kennel", ReferencedTable: "kennels"},
				{ID: "role", Slug: "role", Label: "Role"},
			},
			Sorts:  nameSorts(),
			Fields: []string{"role", "email"},
		},
	}
}

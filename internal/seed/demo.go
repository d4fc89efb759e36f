package seed

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/colonyops/kennel/internal/core/entity"
)

// DefaultPetCount is the number of pets Demo generates when count is zero.
const DefaultPetCount = 500

type breedSeed struct {
	name, petType, size, origin string
}

var (
	demoPetTypes = []string{"Dogs", "Cats", "Birds", "Rabbits"}

	demoBreeds = []breedSeed{
		{"Labrador Retriever", "Dogs", "large", "Canada"},
		{"Border Collie", "Dogs", "medium", "United Kingdom"},
		{"Dachshund", "Dogs", "small", "Germany"},
		{"Shiba Inu", "Dogs", "small", "Japan"},
		{"Bernese Mountain Dog", "Dogs", "large", "Switzerland"},
		{"Maine Coon", "Cats", "large", "United States"},
		{"Siamese", "Cats", "medium", "Thailand"},
		{"Norwegian Forest Cat", "Cats", "large", "Norway"},
		{"Sphynx", "Cats", "medium", "Canada"},
		{"Budgerigar", "Birds", "small", "Australia"},
		{"Cockatiel", "Birds", "small", "Australia"},
		{"Holland Lop", "Rabbits", "small", "Netherlands"},
		{"Flemish Giant", "Rabbits", "large", "Belgium"},
	}

	demoCities = map[string][]string{
		"Norway":      {"Oslo", "Bergen", "Tromsø"},
		"Germany":     {"Berlin", "Köln", "München"},
		"Japan":       {"Tokyo", "Sapporo"},
		"Canada":      {"Montréal", "Vancouver"},
		"Switzerland": {"Zürich", "Genève"},
	}

	demoCountries = []string{"Norway", "Germany", "Japan", "Canada", "Switzerland"}

	demoColors = []string{"black", "white", "brown", "golden", "grey", "spotted", "tabby"}

	demoRoles = []string{"owner", "vet", "groomer", "trainer"}

	demoFirst = []string{
		"Rex", "Bella", "Milo", "Luna", "Max", "Nala", "Oscar", "Kiwi", "Pepper", "Ziggy",
		"Biscuit", "Mochi", "Juno", "Otto", "Hazel", "Pixel", "Tofu", "Olive", "Waffles", "Ada",
	}

	demoSuffix = []string{"", " Jr.", " the Brave", " II", " of the Hills", " Sparkle"}

	demoPeople = []string{
		"Ingrid Solberg", "Jonas Weber", "Aiko Tanaka", "Chloé Tremblay", "Lukas Meier",
		"Sigrid Berg", "Hana Sato", "Émile Roy", "Greta Vogel", "Rune Dahl",
	}
)

// Demo generates a connected demo data set. Output is stable for a given
// count and seed.
func Demo(count int, seed uint64) []Fixture {
	if count <= 0 {
		count = DefaultPetCount
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	rec := func(collection, name string, fields map[string]any) entity.Record {
		return entity.Record{ID: StableID(collection, name), Name: name, Fields: fields}
	}

	petTypes := make([]entity.Record, 0, len(demoPetTypes))
	typeIDs := map[string]string{}
	for _, t := range demoPetTypes {
		r := rec("pet_types", t, nil)
		typeIDs[t] = r.ID
		petTypes = append(petTypes, r)
	}

	breeds := make([]entity.Record, 0, len(demoBreeds))
	breedsByType := map[string][]entity.Record{}
	for _, b := range demoBreeds {
		r := rec("breeds", b.name, map[string]any{
			"pet_type_id": typeIDs[b.petType],
			"size":        b.size,
			"origin":      b.origin,
		})
		breeds = append(breeds, r)
		breedsByType[b.petType] = append(breedsByType[b.petType], r)
	}

	countries := make([]entity.Record, 0, len(demoCountries))
	var cities, kennels []entity.Record
	for _, c := range demoCountries {
		country := rec("countries", c, nil)
		countries = append(countries, country)
		for _, name := range demoCities[c] {
			city := rec("cities", name, map[string]any{"country_id": country.ID})
			cities = append(cities, city)
			kennels = append(kennels, rec("kennels", name+" Kennel Club", map[string]any{
				"country_id": country.ID,
				"city_id":    city.ID,
				"country":    c,
				"city":       name,
			}))
		}
	}

	pets := make([]entity.Record, 0, count)
	for i := range count {
		petType := demoPetTypes[rng.IntN(len(demoPetTypes))]
		options := breedsByType[petType]
		breed := options[rng.IntN(len(options))]
		kennel := kennels[rng.IntN(len(kennels))]
		name := fmt.Sprintf("%s%s #%d", demoFirst[rng.IntN(len(demoFirst))], demoSuffix[rng.IntN(len(demoSuffix))], i+1)
		pets = append(pets, rec("pets", name, map[string]any{
			"pet_type_id": typeIDs[petType],
			"breed_id":    breed.ID,
			"breed":       breed.Name,
			"kennel_id":   kennel.ID,
			"color":       demoColors[rng.IntN(len(demoColors))],
			"age":         1 + rng.IntN(15),
		}))
	}

	contacts := make([]entity.Record, 0, len(demoPeople))
	for i, person := range demoPeople {
		kennel := kennels[i%len(kennels)]
		contacts = append(contacts, rec("contacts", person, map[string]any{
			"kennel_id": kennel.ID,
			"role":      demoRoles[i%len(demoRoles)],
			"email":     emailFor(person),
		}))
	}

	return []Fixture{
		{Collection: "pet_types", Records: petTypes},
		{Collection: "breeds", Records: breeds},
		{Collection: "countries", Records: countries},
		{Collection: "cities", Records: cities},
		{Collection: "kennels", Records: kennels},
		{Collection: "pets", Records: pets},
		{Collection: "contacts", Records: contacts},
	}
}

func emailFor(name string) string {
	local := strings.ToLower(strings.ReplaceAll(name, " ", "."))
	return local + "@example.com"
}

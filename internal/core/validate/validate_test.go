package validate

import (
	"testing"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequired(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "pets", false},
		{"valid with spaces", "my pets", false},
		{"empty string", "", true},
		{"only spaces", "   ", true},
		{"only tabs", "\t\t", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Required(tt.input)
			assert.Equal(t, tt.wantErr, err != nil, "Required(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		})
	}
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"letters", "pets", false},
		{"snake case", "pet_type_id", false},
		{"kebab case", "name-desc", false},
		{"digits after first", "v2", false},
		{"empty", "", true},
		{"leading digit", "2pets", true},
		{"uppercase", "Pets", true},
		{"space", "pet type", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Identifier(tt.input)
			assert.Equal(t, tt.wantErr, err != nil, "Identifier(%q) error = %v", tt.input, err)
		})
	}
}

func TestIdentifierField(t *testing.T) {
	err := IdentifierField("collections[0].id", "Bad Id")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Len(t, fieldErrs, 1)
	assert.Equal(t, "collections[0].id", fieldErrs[0].Field)

	assert.NoError(t, RequiredField("title", "Pets"))
}

func TestOneOf(t *testing.T) {
	assert.NoError(t, OneOf("sqlite", "sqlite", "postgres"))
	err := OneOf("mysql", "sqlite", "postgres")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite, postgres")
}

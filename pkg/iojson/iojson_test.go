package iojson

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pet struct {
	ID   string `json:"id"   yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

func TestWriteWith(t *testing.T) {
	var out, errOut bytes.Buffer
	require.NoError(t, WriteWith(&out, &errOut, pet{ID: "p1", Name: "Rex"}))
	assert.Equal(t, "{\n  \"id\": \"p1\",\n  \"name\": \"Rex\"\n}\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestWriteWith_MarshalError(t *testing.T) {
	var out, errOut bytes.Buffer
	require.NoError(t, WriteWith(&out, &errOut, map[string]any{"bad": make(chan int)}))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), `"json_error"`)
}

func TestWriteLines(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, WriteLines(&out, []pet{{ID: "p1"}, {ID: "p2"}}))
	assert.Equal(t, []string{`{"id":"p1","name":""}`, `{"id":"p2","name":""}`},
		strings.Split(strings.TrimSpace(out.String()), "\n"))
}

func TestFileReader_Formats(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "json", file: "pets.json", content: `[{"id":"p1","name":"Rex"}]`},
		{name: "yaml", file: "pets.yaml", content: "- id: p1\n  name: Rex\n"},
		{name: "yml upper", file: "PETS.YML", content: "- id: p1\n  name: Rex\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			fr := FileReader[[]pet]{path: path}
			assert.True(t, fr.Available())
			got, err := fr.Read()
			require.NoError(t, err)
			assert.Equal(t, []pet{{ID: "p1", Name: "Rex"}}, got)
		})
	}
}

func TestFileReader_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o644))

	_, err := (&FileReader[[]pet]{path: bad}).Read()
	assert.ErrorContains(t, err, "decode JSON")

	_, err = (&FileReader[[]pet]{path: filepath.Join(dir, "missing.json")}).Read()
	assert.ErrorContains(t, err, "open file")
}

package iojson

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// FileReader decodes a command input from the file named by its flag, or
// from stdin when the flag is unset. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON.
type FileReader[T any] struct {
	path string
}

func (fr *FileReader[T]) Flag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "file",
		Aliases:     []string{"f"},
		Usage:       "path to a JSON or YAML file (reads JSON from stdin if not provided)",
		Destination: &fr.path,
	}
}

// Available reports whether there is input to read: a file was named or
// stdin is piped.
func (fr *FileReader[T]) Available() bool {
	return fr.path != "" || !term.IsTerminal(int(os.Stdin.Fd()))
}

func (fr *FileReader[T]) Read() (T, error) {
	var input T

	if fr.path == "" {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return input, fmt.Errorf("no input provided (stdin is a terminal); use -f flag or pipe JSON input")
		}
		return Decode[T](os.Stdin, false)
	}

	f, err := os.Open(fr.path)
	if err != nil {
		return input, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	ext := strings.ToLower(filepath.Ext(fr.path))
	return Decode[T](f, ext == ".yaml" || ext == ".yml")
}

// Decode reads one document from r.
func Decode[T any](r io.Reader, isYAML bool) (T, error) {
	var input T
	if isYAML {
		if err := yaml.NewDecoder(r).Decode(&input); err != nil {
			return input, fmt.Errorf("decode YAML: %w", err)
		}
		return input, nil
	}
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return input, fmt.Errorf("decode JSON: %w", err)
	}
	return input, nil
}

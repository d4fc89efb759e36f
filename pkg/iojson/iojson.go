// Package iojson reads and writes the JSON documents exchanged by the CLI.
package iojson

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// WriteWith writes obj as indented JSON to w. Marshal failures are reported
// on ew as a JSON error object because they indicate a bug, not bad input.
func WriteWith(w io.Writer, ew io.Writer, obj any) error {
	bits, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		msg, _ := json.Marshal(err.Error())
		_, werr := fmt.Fprintf(ew, `{"message":"error marshaling output","data":{"json_error":%s}}`+"\n", msg)
		return werr
	}

	_, err = fmt.Fprintln(w, string(bits))
	return err
}

// Write calls WriteWith with [os.Stdout] and [os.Stderr]
func Write(obj any) error {
	return WriteWith(os.Stdout, os.Stderr, obj)
}

// WriteLines writes each item as one compact JSON document per line.
func WriteLines[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}

package format

import (
	"encoding/json"
	"fmt"
	"io"
)

// Texter is a value with a human-readable terminal rendering.
type Texter interface {
	Text() string
}

// Rendered pairs a JSON payload with its text rendering. It marshals as the
// payload alone.
type Rendered struct {
	Value  any
	Render func() string
}

func (r Rendered) MarshalJSON() ([]byte, error) { return json.Marshal(r.Value) }

func (r Rendered) Text() string {
	if r.Render == nil {
		return fmt.Sprint(r.Value)
	}
	return r.Render()
}

// Write writes output in the requested format.
//
// Supported formats:
// - json (default)
// - text: values implementing Texter print their rendering, anything
//   else falls back to indented JSON
func Write(w io.Writer, v any, format string, pretty bool) error {
	switch format {
	case "", "json":
		return WriteJSON(w, v, pretty)
	case "text":
		if t, ok := v.(Texter); ok {
			_, err := fmt.Fprintln(w, t.Text())
			return err
		}
		return WriteJSON(w, v, true)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// WriteJSON writes strict JSON output for CLI commands.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(b))
	return err
}

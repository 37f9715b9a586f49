package format

import (
	"bytes"
	"strings"
	"testing"
)

func TestWrite_RenderedFollowsFormat(t *testing.T) {
	t.Parallel()

	v := Rendered{Value: map[string]any{"data": 1}, Render: func() string { return "one" }}

	var js bytes.Buffer
	if err := Write(&js, v, "json", false); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got := strings.TrimSpace(js.String()); got != `{"data":1}` {
		t.Fatalf("json = %q", got)
	}

	var txt bytes.Buffer
	if err := Write(&txt, v, "text", false); err != nil {
		t.Fatalf("text: %v", err)
	}
	if got := strings.TrimSpace(txt.String()); got != "one" {
		t.Fatalf("text = %q", got)
	}
}

func TestWrite_TextFallsBackToJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Write(&buf, map[string]int{"n": 2}, "text", false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), "\"n\": 2") {
		t.Fatalf("expected indented JSON, got %q", buf.String())
	}
	if err := Write(&buf, 1, "yaml", false); err == nil {
		t.Fatalf("unknown format accepted")
	}
}

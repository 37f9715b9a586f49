package editing

import (
	"context"
	"testing"
	"time"

	"boardsync/internal/model"
)

func TestNoteSession_AutosavesTitleAndBody(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	id, err := f.backend.Create(ctx, "notes", map[string]any{"userId": "u1", "title": "Ideas", "body": ""})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	n := OpenNote(f.backend, id, "Ideas", "", 10*time.Millisecond, nil)
	_ = n.SetBody("first line")
	_ = n.SetTitle("Ideas (2024)")

	deadline := time.Now().Add(3 * time.Second)
	for {
		doc, err := f.backend.Get(ctx, "notes", id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		var note model.Note
		if err := doc.Decode(&note); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if note.Body == "first line" && note.Title == "Ideas (2024)" && !note.UpdatedAt.IsZero() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("note was not autosaved: %+v", note)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := n.Close(ctx, CloseFlush); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := n.SetBody("late"); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

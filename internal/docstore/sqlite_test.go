package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "docs.sqlite"), SQLiteOptions{WatchInterval: -1})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_CreateGetUpdateDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Create(ctx, "tasks", map[string]any{"title": "Write docs", "priority": "medium"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(id, "task-") {
		t.Fatalf("expected task- prefix, got %q", id)
	}

	doc, err := s.Get(ctx, "tasks", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Fields["title"] != "Write docs" {
		t.Fatalf("unexpected title: %#v", doc.Fields["title"])
	}

	if err := s.Update(ctx, "tasks", id, map[string]any{"priority": "high"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	doc, _ = s.Get(ctx, "tasks", id)
	if doc.Fields["priority"] != "high" || doc.Fields["title"] != "Write docs" {
		t.Fatalf("expected merge semantics, got %#v", doc.Fields)
	}

	if err := s.Update(ctx, "tasks", "task-missing", map[string]any{"x": 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Delete(ctx, "tasks", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "tasks", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "tasks", id); err != nil {
		t.Fatalf("deleting a missing document should succeed: %v", err)
	}
}

func TestSQLite_SetMergeCreatesLazily(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.Set(ctx, "users", "u1", map[string]any{"name": "Anna"}, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "users", "u1", map[string]any{"collapsedSections": map[string][]string{"p1": {"c1"}}}, true); err != nil {
		t.Fatalf("Set merge: %v", err)
	}
	doc, err := s.Get(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Fields["name"] != "Anna" {
		t.Fatalf("merge dropped name: %#v", doc.Fields)
	}
	want := map[string]any{"p1": []any{"c1"}}
	if !reflect.DeepEqual(doc.Fields["collapsedSections"], want) {
		t.Fatalf("unexpected collapsedSections: %#v", doc.Fields["collapsedSections"])
	}

	if err := s.Set(ctx, "users", "u1", map[string]any{"email": "a@example.com"}, false); err != nil {
		t.Fatalf("Set replace: %v", err)
	}
	doc, _ = s.Get(ctx, "users", "u1")
	if _, ok := doc.Fields["name"]; ok {
		t.Fatalf("replace should drop old fields: %#v", doc.Fields)
	}
}

func TestSQLite_ArrayUnionRemoveAndServerTimestamp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "docs.sqlite"), SQLiteOptions{WatchInterval: -1, Now: func() time.Time { return fixed }})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	type member struct {
		UID  string `json:"uid"`
		Name string `json:"name"`
	}
	id, err := s.Create(ctx, "projects", map[string]any{
		"memberIds": []string{"u1"},
		"members":   []member{{UID: "u1", Name: "Anna"}},
		"createdAt": ServerTimestamp(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.Update(ctx, "projects", id, map[string]any{
		"memberIds": ArrayUnion("u2", "u1"),
		"members":   ArrayUnion(member{UID: "u2", Name: "Jan"}),
	}); err != nil {
		t.Fatalf("Update union: %v", err)
	}
	doc, _ := s.Get(ctx, "projects", id)
	if got := doc.Fields["memberIds"]; !reflect.DeepEqual(got, []any{"u1", "u2"}) {
		t.Fatalf("unexpected memberIds after union: %#v", got)
	}
	if got := doc.Fields["members"].([]any); len(got) != 2 {
		t.Fatalf("expected 2 members, got %#v", got)
	}
	if got := doc.Fields["createdAt"]; got != fixed.Format(ServerTimeLayout) {
		t.Fatalf("unexpected server timestamp: %#v", got)
	}

	if err := s.Update(ctx, "projects", id, map[string]any{
		"memberIds": ArrayRemove("u2"),
		"members":   ArrayRemove(member{UID: "u2", Name: "Jan"}),
	}); err != nil {
		t.Fatalf("Update remove: %v", err)
	}
	doc, _ = s.Get(ctx, "projects", id)
	if got := doc.Fields["memberIds"]; !reflect.DeepEqual(got, []any{"u1"}) {
		t.Fatalf("unexpected memberIds after remove: %#v", got)
	}
	if got := doc.Fields["members"].([]any); len(got) != 1 {
		t.Fatalf("expected 1 member, got %#v", got)
	}

	if err := s.Update(ctx, "projects", id, map[string]any{"createdAt": DeleteField()}); err != nil {
		t.Fatalf("Update delete field: %v", err)
	}
	doc, _ = s.Get(ctx, "projects", id)
	if _, ok := doc.Fields["createdAt"]; ok {
		t.Fatalf("expected createdAt to be removed")
	}
}

func TestSQLite_ArrayAppendKeepsDuplicatesAndRemoveByKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Create(ctx, "tasks", map[string]any{
		"attachments": []any{},
		"members":     []any{map[string]any{"uid": "u1"}, map[string]any{"uid": "u2", "email": ""}, "stray"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	file := map[string]any{"name": "a.png", "size": 3}
	for i := 0; i < 2; i++ {
		if err := s.Update(ctx, "tasks", id, map[string]any{"attachments": ArrayAppend(file, file)}); err != nil {
			t.Fatalf("Update append: %v", err)
		}
	}
	if err := s.Update(ctx, "tasks", id, map[string]any{"members": ArrayRemoveBy("uid", "u2")}); err != nil {
		t.Fatalf("Update remove by: %v", err)
	}
	doc, _ := s.Get(ctx, "tasks", id)
	if got := doc.Fields["attachments"].([]any); len(got) != 4 {
		t.Fatalf("expected 4 attachments, got %#v", got)
	}
	want := []any{map[string]any{"uid": "u1"}, "stray"}
	if got := doc.Fields["members"]; !reflect.DeepEqual(got, want) {
		t.Fatalf("members after remove by uid: %#v", got)
	}
}

func TestSQLite_QueryFiltersAndOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	mk := func(fields map[string]any) string {
		id, err := s.Create(ctx, "projects", fields)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		return id
	}
	a := mk(map[string]any{"name": "B", "memberIds": []string{"u1", "u2"}, "archived": false})
	b := mk(map[string]any{"name": "A", "memberIds": []string{"u2"}, "archived": true})
	c := mk(map[string]any{"name": "C", "memberIds": []string{"u1"}, "archived": false})

	docs, err := s.Query(ctx, Collection("projects").ArrayContains("memberIds", "u1"))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := docIDs(docs); !reflect.DeepEqual(got, []string{a, c}) {
		t.Fatalf("array-contains: got %v want %v", got, []string{a, c})
	}

	docs, _ = s.Query(ctx, Collection("projects").Eq("archived", true))
	if got := docIDs(docs); !reflect.DeepEqual(got, []string{b}) {
		t.Fatalf("eq bool: got %v", got)
	}

	docs, _ = s.Query(ctx, Collection("projects").Order("name", true))
	if got := docIDs(docs); !reflect.DeepEqual(got, []string{c, a, b}) {
		t.Fatalf("order desc: got %v", got)
	}

	if _, err := s.Query(ctx, Collection("projects").Eq("name'); DROP TABLE documents; --", "x")); err == nil {
		t.Fatalf("expected invalid field name error")
	}
}

func TestDecodeFieldOps_RoundTripsWireForm(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"updatedAt": map[string]any{"$op": "serverTimestamp"},
		"memberIds": map[string]any{"$op": "arrayUnion", "values": []any{"u3"}},
		"title":     "plain",
	}
	out, err := DecodeFieldOps(in)
	if err != nil {
		t.Fatalf("DecodeFieldOps: %v", err)
	}
	if op, ok := out["updatedAt"].(FieldOp); !ok || op.Kind != opServerTimestamp {
		t.Fatalf("expected server timestamp op, got %#v", out["updatedAt"])
	}
	if op, ok := out["memberIds"].(FieldOp); !ok || op.Kind != opArrayUnion || len(op.Values) != 1 {
		t.Fatalf("expected array union op, got %#v", out["memberIds"])
	}
	if out["title"] != "plain" {
		t.Fatalf("plain value changed: %#v", out["title"])
	}

	if _, err := DecodeFieldOps(map[string]any{"x": map[string]any{"$op": "increment"}}); err == nil {
		t.Fatalf("expected error for unknown op")
	}

	b, err := json.Marshal(map[string]any{"members": ArrayRemoveBy("uid", "u2")})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(b, &wire); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	out, err = DecodeFieldOps(wire)
	if err != nil {
		t.Fatalf("DecodeFieldOps remove by: %v", err)
	}
	if op, ok := out["members"].(FieldOp); !ok || op.Kind != opArrayRemoveBy || op.Key != "uid" || !reflect.DeepEqual(op.Values, []any{"u2"}) {
		t.Fatalf("unexpected remove-by op: %#v", out["members"])
	}
	if _, err := DecodeFieldOps(map[string]any{"x": map[string]any{"$op": "arrayRemoveBy"}}); err == nil {
		t.Fatalf("expected error for remove-by without key")
	}
}

func docIDs(docs []Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

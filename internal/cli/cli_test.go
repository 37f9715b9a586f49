package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args []string) (stdout []byte, stderr []byte, err error) {
	t.Helper()

	cmd := NewRootCmd()

	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)

	e := cmd.Execute()
	return outBuf.Bytes(), errBuf.Bytes(), e
}

// cliEnv runs commands against one isolated config dir.
type cliEnv struct {
	t   *testing.T
	dir string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("BOARDSYNC_AUTOSAVE_DEBOUNCE", "20ms")
	t.Setenv("BOARDSYNC_PREFS_DEBOUNCE", "20ms")
	t.Setenv("BOARDSYNC_WATCH_INTERVAL", "50ms")
	return &cliEnv{t: t, dir: t.TempDir()}
}

func (e *cliEnv) run(args ...string) ([]byte, error) {
	e.t.Helper()
	stdout, stderr, err := runCLI(e.t, append([]string{"--config-dir", e.dir}, args...))
	if err != nil {
		return stderr, err
	}
	return stdout, nil
}

func (e *cliEnv) mustRun(args ...string) map[string]any {
	e.t.Helper()
	out, err := e.run(args...)
	if err != nil {
		e.t.Fatalf("boardsync %v failed: %v\nstderr:\n%s", args, err, out)
	}
	var env map[string]any
	if err := json.Unmarshal(out, &env); err != nil {
		e.t.Fatalf("unmarshal stdout as json envelope: %v\nstdout:\n%s\nargs: %v", err, out, args)
	}
	if _, ok := env["data"]; !ok {
		e.t.Fatalf("expected JSON envelope to contain data key; got: %v", env)
	}
	return env
}

func (e *cliEnv) mustText(args ...string) string {
	e.t.Helper()
	out, err := e.run(append([]string{"--format", "text"}, args...)...)
	if err != nil {
		e.t.Fatalf("boardsync %v failed: %v\nstderr:\n%s", args, err, out)
	}
	return string(out)
}

func dataMap(t *testing.T, env map[string]any) map[string]any {
	t.Helper()
	m, ok := env["data"].(map[string]any)
	if !ok {
		t.Fatalf("data is not an object: %#v", env["data"])
	}
	return m
}

func TestCLI_RequiresSignIn(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run("board")
	if !errors.Is(err, errNotSignedIn) {
		t.Fatalf("board without session: err = %v, want errNotSignedIn", err)
	}
}

func TestCLI_BoardFlow(t *testing.T) {
	e := newCLIEnv(t)

	me := dataMap(t, e.mustRun("signup", "--email", "anna@example.com", "--name", "Anna Smith", "--password", "secret1"))
	if me["uid"] == "" || me["name"] != "Anna Smith" {
		t.Fatalf("signup returned %#v", me)
	}
	who := dataMap(t, e.mustRun("whoami"))
	if who["email"] != "anna@example.com" {
		t.Fatalf("whoami = %#v", who)
	}

	proj := dataMap(t, e.mustRun("projects", "create", "Website", "--deadline", "2030-01-31"))
	pid, _ := proj["id"].(string)
	if !strings.HasPrefix(pid, "proj-") {
		t.Fatalf("projects create id = %q", pid)
	}

	task := dataMap(t, e.mustRun("tasks", "create", "Write copy", "--priority", "high", "--due", "2030-01-10"))
	tid, _ := task["id"].(string)
	if tid == "" {
		t.Fatalf("tasks create returned %#v", task)
	}

	board := e.mustText("board")
	for _, want := range []string{"To do (1)", "Write copy"} {
		if !strings.Contains(board, want) {
			t.Fatalf("board missing %q:\n%s", want, board)
		}
	}

	e.mustRun("tasks", "done", tid)
	shown := dataMap(t, e.mustRun("tasks", "show", tid))
	if shown["status"] != "done" {
		t.Fatalf("status after done = %v", shown["status"])
	}
	hist, _ := shown["history"].([]any)
	if len(hist) < 2 {
		t.Fatalf("expected created and done history entries, got %#v", hist)
	}

	e.mustRun("tasks", "checklist", "add", tid, "Proofread")
	cl := dataMap(t, e.mustRun("tasks", "checklist", "toggle", tid, "0"))
	items, _ := cl["checklist"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["done"] != true {
		t.Fatalf("checklist = %#v", cl["checklist"])
	}

	list := e.mustText("list", "--sort", "priority")
	if !strings.Contains(list, "Write copy") {
		t.Fatalf("list view:\n%s", list)
	}
}

func TestCLI_NotesAndPrefs(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun("signup", "--email", "bo@example.com", "--password", "secret1")

	n := dataMap(t, e.mustRun("notes", "create", "--title", "Ideas", "--body", "ship it"))
	nid, _ := n["id"].(string)
	if nid == "" {
		t.Fatalf("notes create returned %#v", n)
	}
	notes, _ := e.mustRun("notes", "list")["data"].([]any)
	if len(notes) != 1 || notes[0].(map[string]any)["body"] != "ship it" {
		t.Fatalf("notes list = %#v", notes)
	}

	cols, _ := e.mustRun("prefs", "toggle", "priority")["data"].([]any)
	var found bool
	for _, c := range cols {
		m := c.(map[string]any)
		if m["id"] == "priority" {
			found = true
			if m["visible"] != false {
				t.Fatalf("priority column still visible: %#v", m)
			}
		}
	}
	if !found {
		t.Fatalf("priority column missing from %#v", cols)
	}

	// The toggle is flushed on exit, so a fresh invocation sees it.
	again, _ := e.mustRun("prefs", "columns")["data"].([]any)
	for _, c := range again {
		if m := c.(map[string]any); m["id"] == "priority" && m["visible"] != false {
			t.Fatalf("toggle not persisted: %#v", m)
		}
	}
}

func TestCLI_SignOutForgetsSession(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun("signup", "--email", "cy@example.com", "--password", "secret1")
	e.mustRun("signout")
	if _, err := e.run("whoami"); !errors.Is(err, errNotSignedIn) {
		t.Fatalf("whoami after signout: %v", err)
	}
	e.mustRun("signin", "--email", "cy@example.com", "--password", "secret1")
	e.mustRun("whoami")
}

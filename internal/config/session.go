package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const sessionFileName = "session.json"

// Session is the small piece of client state that survives between CLI
// invocations: who is signed in and which project/view was last used.
//
// It is best effort: a missing or corrupt file means "signed out".
type Session struct {
	Version int `json:"version"`

	UID   string `json:"uid,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	// Token is the signed session token, issued by the local store or the relay.
	Token string `json:"token,omitempty"`

	CurrentProjectID string `json:"currentProjectId,omitempty"`
	// View is one of: dashboard|board|list|calendar|gantt|notes|inbox|chat|stats|projects
	View string `json:"view,omitempty"`
}

func (s *Session) SignedIn() bool {
	return s != nil && strings.TrimSpace(s.UID) != ""
}

func sessionPath(dir string) string {
	return filepath.Join(dir, sessionFileName)
}

func LoadSession(dir string) (*Session, error) {
	if strings.TrimSpace(dir) == "" {
		return &Session{Version: 1}, nil
	}
	b, err := os.ReadFile(sessionPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Session{Version: 1}, nil
		}
		return nil, err
	}
	var st Session
	if err := json.Unmarshal(b, &st); err != nil {
		// Best-effort; if corrupted, treat as missing.
		return &Session{Version: 1}, nil
	}
	if st.Version == 0 {
		st.Version = 1
	}
	return &st, nil
}

func SaveSession(dir string, st *Session) error {
	if st == nil || strings.TrimSpace(dir) == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if st.Version == 0 {
		st.Version = 1
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	path := sessionPath(dir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ClearSession removes the session file (sign-out).
func ClearSession(dir string) error {
	err := os.Remove(sessionPath(dir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Package mention finds @Name references to project members in comment
// text and turns them into inbox notifications.
//
// Matching is a literal substring scan, not a tokenizer: "@Anna" matches
// every member whose first name is Anna, and a first name that prefixes
// another member's name can match both.
package mention

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"boardsync/internal/docstore"
	"boardsync/internal/model"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"
)

// Matches returns the members referenced by text as "@Full Name" or
// "@FirstName", in member order, each at most once. The author is never
// matched.
func Matches(text string, members []model.Member, authorUID string) []model.Member {
	var out []model.Member
	seen := map[string]bool{}
	for _, m := range members {
		if m.UID == "" || m.UID == authorUID || seen[m.UID] {
			continue
		}
		hit := m.Name != "" && strings.Contains(text, "@"+m.Name)
		if first := m.FirstName(); !hit && first != "" {
			hit = strings.Contains(text, "@"+first)
		}
		if hit {
			seen[m.UID] = true
			out = append(out, m)
		}
	}
	return out
}

// Author identifies who wrote the comment.
type Author struct {
	UID  string
	Name string
}

type Dispatcher struct {
	backend docstore.Backend
	log     *zap.Logger
}

func NewDispatcher(b docstore.Backend, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{backend: b, log: log}
}

// Dispatch writes one inbox item per member matched in text. A failed
// write is logged and the remaining recipients still get theirs; the ids
// of the items created are returned together with the joined errors.
func (d *Dispatcher) Dispatch(ctx context.Context, task model.Task, project model.Project, author Author, text string) ([]string, error) {
	var (
		ids  []string
		errs []error
	)
	for _, m := range Matches(text, project.Members, author.UID) {
		id, err := d.backend.Create(ctx, "inbox", map[string]any{
			"toUid":       m.UID,
			"fromUid":     author.UID,
			"fromName":    author.Name,
			"taskId":      task.ID,
			"taskTitle":   task.Title,
			"projectId":   project.ID,
			"projectName": project.Name,
			"commentText": text,
			"read":        false,
			"createdAt":   docstore.ServerTimestamp(),
		})
		if err != nil {
			d.log.Warn("mention notification failed", zap.String("to", m.UID), zap.String("task", task.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("notify %s: %w", m.UID, err))
			continue
		}
		ids = append(ids, id)
	}
	return ids, errors.Join(errs...)
}

var (
	triggerRe = regexp.MustCompile(`@(\w*)$`)
	tokenRe   = regexp.MustCompile(`@\w+`)
)

// Trigger reports whether text ends in an @-token being typed, and the
// partial name after the @.
func Trigger(text string) (string, bool) {
	m := triggerRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Complete replaces the trailing @-token of text with the chosen name.
func Complete(text, name string) string {
	loc := triggerRe.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return text[:loc[0]] + "@" + name + " "
}

// Suggest lists the members whose name contains query, case-insensitively,
// best fuzzy match first. An empty query returns every member.
func Suggest(query string, members []model.Member) []model.Member {
	q := strings.ToLower(query)
	var (
		names []string
		pool  []model.Member
	)
	for _, m := range members {
		n := strings.ToLower(m.Name)
		if strings.Contains(n, q) {
			names = append(names, n)
			pool = append(pool, m)
		}
	}
	if q == "" || len(pool) < 2 {
		return pool
	}
	out := make([]model.Member, 0, len(pool))
	for _, match := range fuzzy.Find(q, names) {
		out = append(out, pool[match.Index])
	}
	return out
}

// Highlight passes every @word token of text through wrap.
func Highlight(text string, wrap func(token string) string) string {
	return tokenRe.ReplaceAllStringFunc(text, wrap)
}

// Package publish writes projects out as plain markdown files.
package publish

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"boardsync/internal/entitystore"
)

type WriteOptions struct {
	Overwrite bool
	// HTML writes .html pages instead of markdown.
	HTML bool
}

func (o WriteOptions) ext() string {
	if o.HTML {
		return ".html"
	}
	return ".md"
}

// encode returns the file body for a rendered markdown page.
func (o WriteOptions) encode(title, md string) ([]byte, error) {
	if o.HTML {
		return markdownPage(title, md)
	}
	return []byte(md), nil
}

type WriteResult struct {
	Written []string `json:"written"`
}

// WriteTask writes <toDir>/tasks/<task-id>.md (or .html).
func WriteTask(snap *entitystore.Snapshot, taskID string, toDir string, opt WriteOptions) (WriteResult, error) {
	toDir = strings.TrimSpace(toDir)
	if toDir == "" {
		return WriteResult{}, errors.New("missing --to")
	}
	md, err := RenderTaskMarkdown(snap, taskID)
	if err != nil {
		return WriteResult{}, err
	}
	outDir := filepath.Join(filepath.Clean(toDir), "tasks")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return WriteResult{}, err
	}
	b, err := opt.encode(taskID, md)
	if err != nil {
		return WriteResult{}, err
	}
	outPath := filepath.Join(outDir, taskID+opt.ext())
	if err := writeFile(outPath, b, opt.Overwrite); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Written: []string{outPath}}, nil
}

// WriteProject writes <toDir>/<project-id>/index.md and one page per task
// under <toDir>/<project-id>/tasks. It stops at the first error.
func WriteProject(snap *entitystore.Snapshot, pid string, toDir string, opt WriteOptions) (WriteResult, error) {
	toDir = strings.TrimSpace(toDir)
	if toDir == "" {
		return WriteResult{}, errors.New("missing --to")
	}
	pid = strings.TrimSpace(pid)
	indexMD, err := renderProjectIndex(snap, pid, opt.ext())
	if err != nil {
		return WriteResult{}, err
	}

	projectDir := filepath.Join(filepath.Clean(toDir), pid)
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return WriteResult{}, err
	}
	b, err := opt.encode(pid, indexMD)
	if err != nil {
		return WriteResult{}, err
	}
	indexPath := filepath.Join(projectDir, "index"+opt.ext())
	if err := writeFile(indexPath, b, opt.Overwrite); err != nil {
		return WriteResult{}, err
	}

	written := []string{indexPath}
	for _, t := range snap.ProjectTasks(pid) {
		res, err := WriteTask(snap, t.ID, projectDir, opt)
		if err != nil {
			return WriteResult{Written: written}, err
		}
		written = append(written, res.Written...)
	}
	return WriteResult{Written: written}, nil
}

func writeFile(path string, b []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New("file exists (use --overwrite): " + path)
		}
	}
	return os.WriteFile(path, b, 0o644)
}

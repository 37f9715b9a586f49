package app

import (
	"context"
	"fmt"
	"strings"

	"boardsync/internal/docstore"
	"boardsync/internal/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultColor is used for projects and columns created without one.
const DefaultColor = "#6B7C5C"

// cascadeWorkers bounds concurrent deletes of a project's documents.
const cascadeWorkers = 8

var defaultColumns = []struct{ Name, Color string }{
	{"To do", "#6B7C5C"},
	{"In progress", "#8B7355"},
	{"Done", "#5C7B7C"},
}

type ProjectInput struct {
	Name     string
	Desc     string
	Deadline string
	Color    string
}

func (in ProjectInput) validate() (ProjectInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Desc = strings.TrimSpace(in.Desc)
	in.Deadline = strings.TrimSpace(in.Deadline)
	if err := model.Required("name", in.Name); err != nil {
		return in, err
	}
	if err := model.ValidateDate("deadline", in.Deadline); err != nil {
		return in, err
	}
	if in.Color == "" {
		in.Color = DefaultColor
	}
	return in, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (a *App) project(pid string) (model.Project, error) {
	p, ok := a.Snapshot().Project(pid)
	if !ok {
		return model.Project{}, NotFoundError{Kind: "project", ID: pid}
	}
	return p, nil
}

// CreateProject creates a project owned by the current user with the three
// default columns.
func (a *App) CreateProject(ctx context.Context, in ProjectInput) (string, error) {
	u, err := a.requireUser()
	if err != nil {
		return "", err
	}
	in, err = in.validate()
	if err != nil {
		return "", a.fail("Invalid project", err)
	}
	cols := make([]model.Column, 0, len(defaultColumns))
	for i, c := range defaultColumns {
		id, err := docstore.NewID("col")
		if err != nil {
			return "", err
		}
		cols = append(cols, model.Column{ID: id, Name: c.Name, Color: c.Color, Order: i})
	}
	pid, err := a.backend.Create(ctx, "projects", map[string]any{
		"name":      in.Name,
		"desc":      in.Desc,
		"deadline":  nullIfEmpty(in.Deadline),
		"color":     in.Color,
		"ownerId":   u.UID,
		"memberIds": []string{u.UID},
		"members":   []model.Member{{UID: u.UID, Name: u.Name, Email: u.Email, Role: model.RoleOwner}},
		"columns":   cols,
		"archived":  false,
		"createdAt": docstore.ServerTimestamp(),
	})
	if err != nil {
		return "", a.fail("Could not create project", err)
	}
	a.subs.EnsureTasks(pid)
	a.ok("Project created")
	return pid, nil
}

func (a *App) UpdateProject(ctx context.Context, pid string, in ProjectInput) error {
	in, err := in.validate()
	if err != nil {
		return a.fail("Invalid project", err)
	}
	if err := a.backend.Update(ctx, "projects", pid, map[string]any{
		"name":     in.Name,
		"desc":     in.Desc,
		"deadline": nullIfEmpty(in.Deadline),
		"color":    in.Color,
	}); err != nil {
		return a.fail("Could not update project", err)
	}
	a.ok("Project updated")
	return nil
}

func (a *App) ArchiveProject(ctx context.Context, pid string) error {
	if err := a.backend.Update(ctx, "projects", pid, map[string]any{"archived": true}); err != nil {
		return a.fail("Could not archive project", err)
	}
	a.mu.Lock()
	if a.projectID == pid {
		a.projectID = ""
		a.view = ViewProjects
	}
	a.mu.Unlock()
	a.ok("Project archived")
	return nil
}

func (a *App) RestoreProject(ctx context.Context, pid string) error {
	if err := a.backend.Update(ctx, "projects", pid, map[string]any{"archived": false}); err != nil {
		return a.fail("Could not restore project", err)
	}
	a.ok("Project restored")
	return nil
}

// DeleteProject removes the project's tasks and chat messages, then the
// project itself. Only the owner may delete.
func (a *App) DeleteProject(ctx context.Context, pid string) error {
	u, err := a.requireUser()
	if err != nil {
		return err
	}
	p, err := a.project(pid)
	if err != nil {
		return a.fail("Could not delete project", err)
	}
	if p.OwnerID != u.UID {
		return a.fail("Could not delete project", OwnerOnlyError{ProjectID: pid, Action: "delete the project"})
	}
	for _, coll := range []string{"tasks", "chat"} {
		if err := a.deleteWhere(ctx, docstore.Collection(coll).Eq("projectId", pid)); err != nil {
			return a.fail("Could not delete project", err)
		}
	}
	if err := a.backend.Delete(ctx, "projects", pid); err != nil {
		return a.fail("Could not delete project", err)
	}
	a.mu.Lock()
	if a.projectID == pid {
		a.projectID = ""
		a.view = ViewProjects
	}
	a.mu.Unlock()
	a.log.Info("project deleted", zap.String("project", pid))
	a.ok("Project deleted")
	return nil
}

func (a *App) deleteWhere(ctx context.Context, q docstore.Query) error {
	docs, err := a.backend.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("query %s: %w", q.Collection, err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cascadeWorkers)
	for _, d := range docs {
		id := d.ID
		g.Go(func() error {
			if err := a.backend.Delete(gctx, q.Collection, id); err != nil {
				return fmt.Errorf("delete %s/%s: %w", q.Collection, id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// AddColumn appends a column after the existing ones.
func (a *App) AddColumn(ctx context.Context, pid, name, color string) (string, error) {
	name = strings.TrimSpace(name)
	if err := model.Required("name", name); err != nil {
		return "", a.fail("Invalid column", err)
	}
	p, err := a.project(pid)
	if err != nil {
		return "", a.fail("Could not add column", err)
	}
	if color == "" {
		color = DefaultColor
	}
	id, err := docstore.NewID("col")
	if err != nil {
		return "", err
	}
	cols := append(append([]model.Column(nil), p.Columns...), model.Column{ID: id, Name: name, Color: color, Order: len(p.Columns)})
	if err := a.backend.Update(ctx, "projects", pid, map[string]any{"columns": cols}); err != nil {
		return "", a.fail("Could not add column", err)
	}
	return id, nil
}

// UpdateColumn renames and recolors a column. An empty color keeps the
// current one.
func (a *App) UpdateColumn(ctx context.Context, pid, colID, name, color string) error {
	name = strings.TrimSpace(name)
	if err := model.Required("name", name); err != nil {
		return a.fail("Invalid column", err)
	}
	p, err := a.project(pid)
	if err != nil {
		return a.fail("Could not update column", err)
	}
	cols := append([]model.Column(nil), p.Columns...)
	found := false
	for i := range cols {
		if cols[i].ID == colID {
			cols[i].Name = name
			if color != "" {
				cols[i].Color = color
			}
			found = true
		}
	}
	if !found {
		return a.fail("Could not update column", NotFoundError{Kind: "column", ID: colID})
	}
	if err := a.backend.Update(ctx, "projects", pid, map[string]any{"columns": cols}); err != nil {
		return a.fail("Could not update column", err)
	}
	return nil
}

// DeleteColumn removes a column. Its tasks keep their columnId and show up
// in the list's Remaining section.
func (a *App) DeleteColumn(ctx context.Context, pid, colID string) error {
	p, err := a.project(pid)
	if err != nil {
		return a.fail("Could not delete column", err)
	}
	cols := make([]model.Column, 0, len(p.Columns))
	for _, c := range p.Columns {
		if c.ID != colID {
			cols = append(cols, c)
		}
	}
	if len(cols) == len(p.Columns) {
		return a.fail("Could not delete column", NotFoundError{Kind: "column", ID: colID})
	}
	if err := a.backend.Update(ctx, "projects", pid, map[string]any{"columns": cols}); err != nil {
		return a.fail("Could not delete column", err)
	}
	return nil
}

// AddMember looks a user up by email in the users collection and adds them
// as a member.
func (a *App) AddMember(ctx context.Context, pid, email string) (model.Member, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	p, err := a.project(pid)
	if err != nil {
		return model.Member{}, a.fail("Could not add member", err)
	}
	docs, err := a.backend.Query(ctx, docstore.Collection("users").Eq("email", email))
	if err != nil {
		return model.Member{}, a.fail("Could not add member", err)
	}
	if len(docs) == 0 {
		return model.Member{}, a.fail("Could not add member", NotFoundError{Kind: "user", ID: email})
	}
	var u model.User
	if err := docs[0].Decode(&u); err != nil {
		return model.Member{}, a.fail("Could not add member", err)
	}
	uid := docs[0].ID
	if p.IsMember(uid) {
		return model.Member{}, a.fail("Could not add member", fmt.Errorf("%s is already a member", u.Name))
	}
	m := model.Member{UID: uid, Name: u.Name, Email: u.Email, Role: model.RoleMember}
	if err := a.backend.Update(ctx, "projects", pid, map[string]any{
		"memberIds": docstore.ArrayUnion(uid),
		"members":   docstore.ArrayUnion(m),
	}); err != nil {
		return model.Member{}, a.fail("Could not add member", err)
	}
	a.ok(m.Name + " added to the project")
	return m, nil
}

// RemoveMember revokes a member. The owner cannot be removed.
func (a *App) RemoveMember(ctx context.Context, pid, uid string) error {
	p, err := a.project(pid)
	if err != nil {
		return a.fail("Could not remove member", err)
	}
	if uid == p.OwnerID {
		return a.fail("Could not remove member", fmt.Errorf("the owner cannot be removed"))
	}
	if _, ok := p.Member(uid); !ok && !p.IsMember(uid) {
		return a.fail("Could not remove member", NotFoundError{Kind: "member", ID: uid})
	}
	// Members are matched by uid so a stored entry with a different shape
	// still leaves together with its memberIds entry.
	if err := a.backend.Update(ctx, "projects", pid, map[string]any{
		"memberIds": docstore.ArrayRemove(uid),
		"members":   docstore.ArrayRemoveBy("uid", uid),
	}); err != nil {
		return a.fail("Could not remove member", err)
	}
	return nil
}

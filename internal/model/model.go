package model

import (
	"strings"
)

type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleMember MemberRole = "member"
)

type Member struct {
	UID   string     `json:"uid"`
	Name  string     `json:"name"`
	Email string     `json:"email,omitempty"`
	Role  MemberRole `json:"role"`
}

// FirstName is the first whitespace-separated token of the display name.
func (m Member) FirstName() string {
	f := strings.Fields(m.Name)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

type Column struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Order int    `json:"order"`
}

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Desc      string    `json:"desc,omitempty"`
	Color     string    `json:"color,omitempty"`
	Deadline  string    `json:"deadline,omitempty"`
	OwnerID   string    `json:"ownerId"`
	MemberIDs []string  `json:"memberIds"`
	Members   []Member  `json:"members"`
	Columns   []Column  `json:"columns"`
	Archived  bool      `json:"archived"`
	CreatedAt Timestamp `json:"createdAt"`
}

// Clone returns a copy that shares no slices with p.
func (p Project) Clone() Project {
	c := p
	c.MemberIDs = append([]string(nil), p.MemberIDs...)
	c.Members = append([]Member(nil), p.Members...)
	c.Columns = append([]Column(nil), p.Columns...)
	return c
}

func (p Project) Column(id string) (Column, bool) {
	for _, c := range p.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

func (p Project) Member(uid string) (Member, bool) {
	for _, m := range p.Members {
		if m.UID == uid {
			return m, true
		}
	}
	return Member{}, false
}

func (p Project) IsMember(uid string) bool {
	for _, id := range p.MemberIDs {
		if id == uid {
			return true
		}
	}
	return false
}

// CheckMembership reports whether memberIds is exactly the set of member uids and
// the owner is present with the owner role.
func (p Project) CheckMembership() error {
	ids := map[string]bool{}
	for _, id := range p.MemberIDs {
		ids[id] = true
	}
	seen := map[string]bool{}
	for _, m := range p.Members {
		if !ids[m.UID] {
			return ValidationError{Field: "members", Msg: "member " + m.UID + " missing from memberIds"}
		}
		seen[m.UID] = true
	}
	for id := range ids {
		if !seen[id] {
			return ValidationError{Field: "memberIds", Msg: "memberId " + id + " has no member entry"}
		}
	}
	owner, ok := p.Member(p.OwnerID)
	if !ok || owner.Role != RoleOwner {
		return ValidationError{Field: "ownerId", Msg: "owner must be a member with role owner"}
	}
	return nil
}

type TaskStatus string

const (
	StatusOpen TaskStatus = "open"
	StatusDone TaskStatus = "done"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities high < medium < low. Unknown values sort with low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium, "":
		return 1
	default:
		return 2
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

type ChecklistItem struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Attachment is stored inline in the task document; URL carries a data URL.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size"`
}

type CommentImage struct {
	DataURL string `json:"dataUrl"`
	Name    string `json:"name"`
}

type Comment struct {
	Text       string         `json:"text"`
	Images     []CommentImage `json:"images,omitempty"`
	AuthorID   string         `json:"authorId"`
	AuthorName string         `json:"authorName"`
	At         Timestamp      `json:"at"`
}

type HistoryEntry struct {
	Action string    `json:"action"`
	By     string    `json:"by"`
	At     Timestamp `json:"at"`
}

type Task struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	ColumnID  string `json:"columnId"`

	Title    string     `json:"title"`
	Desc     string     `json:"desc,omitempty"`
	Status   TaskStatus `json:"status,omitempty"`
	Priority Priority   `json:"priority,omitempty"`

	// Date-only "YYYY-MM-DD" strings.
	StartDate string `json:"startDate,omitempty"`
	DueDate   string `json:"dueDate,omitempty"`

	AssigneeID   string `json:"assigneeId,omitempty"`
	AssigneeName string `json:"assigneeName,omitempty"`

	Checklist   []ChecklistItem `json:"checklist"`
	Attachments []Attachment    `json:"attachments"`
	Comments    []Comment       `json:"comments"`
	History     []HistoryEntry  `json:"history"`

	CreatedAt     Timestamp `json:"createdAt"`
	CreatedBy     string    `json:"createdBy,omitempty"`
	CreatedByName string    `json:"createdByName,omitempty"`
}

func (t Task) EffectivePriority() Priority {
	if t.Priority == "" {
		return PriorityMedium
	}
	return t.Priority
}

// Clone returns a copy that shares no slices with t.
func (t Task) Clone() Task {
	c := t
	c.Checklist = append([]ChecklistItem(nil), t.Checklist...)
	c.Attachments = append([]Attachment(nil), t.Attachments...)
	c.Comments = make([]Comment, len(t.Comments))
	for i, cm := range t.Comments {
		cm.Images = append([]CommentImage(nil), cm.Images...)
		c.Comments[i] = cm
	}
	c.History = append([]HistoryEntry(nil), t.History...)
	return c
}

// ChecklistProgress returns done and total checklist rows.
func (t Task) ChecklistProgress() (done, total int) {
	for _, c := range t.Checklist {
		if c.Done {
			done++
		}
	}
	return done, len(t.Checklist)
}

type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

type InboxItem struct {
	ID          string    `json:"id"`
	ToUID       string    `json:"toUid"`
	FromUID     string    `json:"fromUid"`
	FromName    string    `json:"fromName"`
	TaskID      string    `json:"taskId"`
	TaskTitle   string    `json:"taskTitle"`
	ProjectID   string    `json:"projectId"`
	ProjectName string    `json:"projectName"`
	CommentText string    `json:"commentText"`
	Read        bool      `json:"read"`
	CreatedAt   Timestamp `json:"createdAt"`
}

type ChatMessage struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	CreatedAt  Timestamp `json:"createdAt"`
}

type User struct {
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt Timestamp `json:"createdAt"`
}

// ListColumnPref is one persisted list-view column customization.
type ListColumnPref struct {
	ID      string `json:"id"`
	Width   int    `json:"width,omitempty"`
	Visible bool   `json:"visible"`
}

// UserPrefs lives on the users/{uid} document.
type UserPrefs struct {
	ListColumnConfig  []ListColumnPref    `json:"listColumnConfig,omitempty"`
	CollapsedSections map[string][]string `json:"collapsedSections,omitempty"`
}

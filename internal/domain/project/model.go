package project

import (
	"strings"
	"time"
)

const (
	StatusPlanning  = "planning"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusArchived  = "archived"

	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskDone       = "done"
)

func validProjectStatus(s string) bool {
	switch s {
	case StatusPlanning, StatusActive, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

func validTaskStatus(s string) bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskDone:
		return true
	}
	return false
}

type Project struct {
	ID            string    `firestore:"id" json:"id"`
	Name          string    `firestore:"name" json:"name"`
	NameLower     string    `firestore:"nameLower" json:"-"`
	Slug          string    `firestore:"slug" json:"slug"`
	Description   string    `firestore:"description,omitempty" json:"description,omitempty"`
	Status        string    `firestore:"status" json:"status"`
	OwnerUID      string    `firestore:"ownerUid" json:"ownerUid"`
	Collaborators []string  `firestore:"collaborators" json:"collaborators"`
	CreatedAt     time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt" json:"updatedAt"`
}

func (p *Project) HasCollaborator(uid string) bool {
	if uid == "" {
		return false
	}
	if p.OwnerUID == uid {
		return true
	}
	for _, c := range p.Collaborators {
		if c == uid {
			return true
		}
	}
	return false
}

type Task struct {
	ID          string     `firestore:"id" json:"id"`
	ProjectID   string     `firestore:"projectId" json:"projectId"`
	Title       string     `firestore:"title" json:"title"`
	Description string     `firestore:"description,omitempty" json:"description,omitempty"`
	Status      string     `firestore:"status" json:"status"`
	Assignee    string     `firestore:"assignee,omitempty" json:"assignee,omitempty"`
	DueAt       *time.Time `firestore:"dueAt,omitempty" json:"dueAt,omitempty"`
	CreatedBy   string     `firestore:"createdBy" json:"createdBy"`
	CreatedAt   time.Time  `firestore:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt" json:"updatedAt"`
}

type Message struct {
	ID         string    `firestore:"id" json:"id"`
	AuthorUID  string    `firestore:"authorUid" json:"authorUid"`
	AuthorName string    `firestore:"authorName,omitempty" json:"authorName,omitempty"`
	Text       string    `firestore:"text" json:"text"`
	CreatedAt  time.Time `firestore:"createdAt" json:"createdAt"`
}

type CreateProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (in *CreateProjectInput) Trim() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
}

type UpdateProjectInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}

func (in *UpdateProjectInput) Trim() {
	trimPtr(in.Name)
	trimPtr(in.Description)
	trimPtr(in.Status)
}

type CollaboratorInput struct {
	UID   string `json:"uid,omitempty"`
	Email string `json:"email,omitempty"`
}

func (in *CollaboratorInput) Trim() {
	in.UID = strings.TrimSpace(in.UID)
	in.Email = strings.TrimSpace(in.Email)
}

type CreateTaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
}

func (in *CreateTaskInput) Trim() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Status = strings.TrimSpace(in.Status)
	in.Assignee = strings.TrimSpace(in.Assignee)
}

type UpdateTaskInput struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Assignee    *string    `json:"assignee,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
}

func (in *UpdateTaskInput) Trim() {
	trimPtr(in.Title)
	trimPtr(in.Description)
	trimPtr(in.Status)
	trimPtr(in.Assignee)
}

// TaskStatusUpdate is one entry of a batched status change.
type TaskStatusUpdate struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

type PostMessageInput struct {
	Text       string `json:"text"`
	AuthorName string `json:"authorName,omitempty"`
}

func (in *PostMessageInput) Trim() {
	in.Text = strings.TrimSpace(in.Text)
	in.AuthorName = strings.TrimSpace(in.AuthorName)
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

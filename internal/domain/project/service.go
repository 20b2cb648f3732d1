package project

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"collab/backend/internal/utils"
)

const (
	maxNameLen        = 120
	maxDescriptionLen = 5000
	maxTaskTitleLen   = 300
	maxMessageLen     = 4000
	maxBatchUpdates   = 499 // one slot is kept for the project's updatedAt

	DefaultListLimit     = 50
	DefaultMessagesLimit = 50
	maxListLimit         = 200
)

// Directory resolves collaborator emails to uids.
type Directory interface {
	UIDByEmail(ctx context.Context, email string) (string, error)
}

// AuthDirectory looks users up in Firebase Auth.
type AuthDirectory struct {
	Client *auth.Client
}

func (d AuthDirectory) UIDByEmail(ctx context.Context, email string) (string, error) {
	u, err := d.Client.GetUserByEmail(ctx, email)
	if auth.IsUserNotFound(err) {
		return "", fmt.Errorf("%w: no user with email %s", ErrNotFound, email)
	}
	if err != nil {
		return "", err
	}
	return u.UID, nil
}

type Service struct {
	store   Store
	watcher Watcher
	dir     Directory
	log     *zap.Logger
	now     func() time.Time
}

func NewService(store Store, watcher Watcher, dir Directory, log *zap.Logger) *Service {
	return &Service{
		store:   store,
		watcher: watcher,
		dir:     dir,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// access loads the project and checks that uid collaborates on it.
func (s *Service) access(ctx context.Context, uid, projectID string) (*Project, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id required", ErrBadRequest)
	}
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !p.HasCollaborator(uid) {
		return nil, fmt.Errorf("%w: not a collaborator on this project", ErrForbidden)
	}
	return p, nil
}

func (s *Service) owner(ctx context.Context, uid, projectID string) (*Project, error) {
	p, err := s.access(ctx, uid, projectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerUID != uid {
		return nil, fmt.Errorf("%w: only the project owner can do this", ErrForbidden)
	}
	return p, nil
}

func tooLong(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}

func (s *Service) CreateProject(ctx context.Context, uid string, in CreateProjectInput) (*Project, error) {
	in.Trim()
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
	}
	if tooLong(in.Name, maxNameLen) || tooLong(in.Description, maxDescriptionLen) {
		return nil, fmt.Errorf("%w: name or description too long", ErrBadRequest)
	}
	now := s.now()
	return s.store.CreateProject(ctx, Project{
		Name:          in.Name,
		NameLower:     utils.NormalizeNameLower(in.Name),
		Slug:          utils.Slugify(in.Name),
		Description:   in.Description,
		Status:        StatusPlanning,
		OwnerUID:      uid,
		Collaborators: []string{uid},
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (s *Service) GetProject(ctx context.Context, uid, projectID string) (*Project, error) {
	return s.access(ctx, uid, projectID)
}

func (s *Service) ListProjects(ctx context.Context, uid string, limit int) ([]Project, error) {
	return s.store.ListProjects(ctx, uid, clampLimit(limit, DefaultListLimit))
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func (s *Service) UpdateProject(ctx context.Context, uid, projectID string, in UpdateProjectInput) (*Project, error) {
	in.Trim()
	if _, err := s.access(ctx, uid, projectID); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if in.Name != nil {
		if *in.Name == "" || tooLong(*in.Name, maxNameLen) {
			return nil, fmt.Errorf("%w: invalid name", ErrBadRequest)
		}
		fields["name"] = *in.Name
		fields["nameLower"] = utils.NormalizeNameLower(*in.Name)
		fields["slug"] = utils.Slugify(*in.Name)
	}
	if in.Description != nil {
		if tooLong(*in.Description, maxDescriptionLen) {
			return nil, fmt.Errorf("%w: description too long", ErrBadRequest)
		}
		fields["description"] = *in.Description
	}
	if in.Status != nil {
		if !validProjectStatus(*in.Status) {
			return nil, fmt.Errorf("%w: invalid status %q", ErrBadRequest, *in.Status)
		}
		fields["status"] = *in.Status
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrBadRequest)
	}
	fields["updatedAt"] = s.now()
	if err := s.store.UpdateProject(ctx, projectID, fields); err != nil {
		return nil, err
	}
	return s.store.GetProject(ctx, projectID)
}

func (s *Service) DeleteProject(ctx context.Context, uid, projectID string) error {
	if _, err := s.owner(ctx, uid, projectID); err != nil {
		return err
	}
	return s.store.DeleteProject(ctx, projectID)
}

func (s *Service) resolveCollaborator(ctx context.Context, in CollaboratorInput) (string, error) {
	in.Trim()
	if in.UID != "" {
		return in.UID, nil
	}
	if in.Email == "" {
		return "", fmt.Errorf("%w: uid or email is required", ErrBadRequest)
	}
	if s.dir == nil {
		return "", fmt.Errorf("%w: lookup by email is not available", ErrBadRequest)
	}
	return s.dir.UIDByEmail(ctx, in.Email)
}

// AddCollaborator is idempotent: adding an existing collaborator leaves a
// single entry.
func (s *Service) AddCollaborator(ctx context.Context, uid, projectID string, in CollaboratorInput) (*Project, error) {
	if _, err := s.owner(ctx, uid, projectID); err != nil {
		return nil, err
	}
	target, err := s.resolveCollaborator(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddCollaborator(ctx, projectID, target, s.now()); err != nil {
		return nil, err
	}
	return s.store.GetProject(ctx, projectID)
}

func (s *Service) RemoveCollaborator(ctx context.Context, uid, projectID, target string) (*Project, error) {
	p, err := s.owner(ctx, uid, projectID)
	if err != nil {
		return nil, err
	}
	if target == "" {
		return nil, fmt.Errorf("%w: collaborator uid required", ErrBadRequest)
	}
	if target == p.OwnerUID {
		return nil, fmt.Errorf("%w: the owner cannot be removed", ErrBadRequest)
	}
	if err := s.store.RemoveCollaborator(ctx, projectID, target, s.now()); err != nil {
		return nil, err
	}
	return s.store.GetProject(ctx, projectID)
}

func (s *Service) CreateTask(ctx context.Context, uid, projectID string, in CreateTaskInput) (*Task, error) {
	in.Trim()
	if _, err := s.access(ctx, uid, projectID); err != nil {
		return nil, err
	}
	if in.Title == "" || tooLong(in.Title, maxTaskTitleLen) {
		return nil, fmt.Errorf("%w: title is required and must be at most %d characters", ErrBadRequest, maxTaskTitleLen)
	}
	if tooLong(in.Description, maxDescriptionLen) {
		return nil, fmt.Errorf("%w: description too long", ErrBadRequest)
	}
	if in.Status == "" {
		in.Status = TaskTodo
	}
	if !validTaskStatus(in.Status) {
		return nil, fmt.Errorf("%w: invalid status %q", ErrBadRequest, in.Status)
	}
	now := s.now()
	t, err := s.store.CreateTask(ctx, projectID, Task{
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Assignee:    in.Assignee,
		DueAt:       in.DueAt,
		CreatedBy:   uid,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, err
	}
	s.touch(ctx, projectID, now)
	return t, nil
}

// touch stamps the project's updatedAt after a subcollection write.
func (s *Service) touch(ctx context.Context, projectID string, now time.Time) {
	if err := s.store.UpdateProject(ctx, projectID, map[string]any{"updatedAt": now}); err != nil {
		s.log.Warn("project updatedAt stamp failed", zap.String("project", projectID), zap.Error(err))
	}
}

func (s *Service) ListTasks(ctx context.Context, uid, projectID string) ([]Task, error) {
	if _, err := s.access(ctx, uid, projectID); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, projectID)
}

func (s *Service) UpdateTask(ctx context.Context, uid, projectID, taskID string, in UpdateTaskInput) (*Task, error) {
	in.Trim()
	if _, err := s.access(ctx, uid, projectID); err != nil {
		return nil, err
	}
	if taskID == "" {
		return nil, fmt.Errorf("%w: task id required", ErrBadRequest)
	}
	fields := map[string]any{}
	if in.Title != nil {
		if *in.Title == "" || tooLong(*in.Title, maxTaskTitleLen) {
			return nil, fmt.Errorf("%w: invalid title", ErrBadRequest)
		}
		fields["title"] = *in.Title
	}
	if in.Description != nil {
		if tooLong(*in.Description, maxDescriptionLen) {
			return nil, fmt.Errorf("%w: description too long", ErrBadRequest)
		}
		fields["description"] = *in.Description
	}
	if in.Status != nil {
		if !validTaskStatus(*in.Status) {
			return nil, fmt.Errorf("%w: invalid status %q", ErrBadRequest, *in.Status)
		}
		fields["status"] = *in.Status
	}
	if in.Assignee != nil {
		fields["assignee"] = *in.Assignee
	}
	if in.DueAt != nil {
		fields["dueAt"] = in.DueAt.UTC()
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrBadRequest)
	}
	now := s.now()
	fields["updatedAt"] = now
	if err := s.store.UpdateTask(ctx, projectID, taskID, fields); err != nil {
		return nil, err
	}
	s.touch(ctx, projectID, now)
	return s.store.GetTask(ctx, projectID, taskID)
}

func (s *Service) DeleteTask(ctx context.Context, uid, projectID, taskID string) error {
	if _, err := s.access(ctx, uid, projectID); err != nil {
		return err
	}
	if taskID == "" {
		return fmt.Errorf("%w: task id required", ErrBadRequest)
	}
	if err := s.store.DeleteTask(ctx, projectID, taskID); err != nil {
		return err
	}
	s.touch(ctx, projectID, s.now())
	return nil
}

// BatchUpdateTasks applies every status change or none of them.
func (s *Service) BatchUpdateTasks(ctx context.Context, uid, projectID string, updates []TaskStatusUpdate) error {
	if _, err := s.access(ctx, uid, projectID); err != nil {
		return err
	}
	if len(updates) == 0 {
		return fmt.Errorf("%w: no updates", ErrBadRequest)
	}
	if len(updates) > maxBatchUpdates {
		return fmt.Errorf("%w: at most %d updates per batch", ErrBadRequest, maxBatchUpdates)
	}
	for _, u := range updates {
		if u.TaskID == "" || !validTaskStatus(u.Status) {
			return fmt.Errorf("%w: invalid update for task %q", ErrBadRequest, u.TaskID)
		}
	}
	return s.store.BatchUpdateTasks(ctx, projectID, updates, s.now())
}

func (s *Service) PostMessage(ctx context.Context, uid, projectID string, in PostMessageInput) (*Message, error) {
	in.Trim()
	if _, err := s.access(ctx, uid, projectID); err != nil {
		return nil, err
	}
	if in.Text == "" || tooLong(in.Text, maxMessageLen) {
		return nil, fmt.Errorf("%w: text is required and must be at most %d characters", ErrBadRequest, maxMessageLen)
	}
	now := s.now()
	m, err := s.store.CreateMessage(ctx, projectID, Message{
		AuthorUID:  uid,
		AuthorName: in.AuthorName,
		Text:       in.Text,
		CreatedAt:  now,
	})
	if err != nil {
		return nil, err
	}
	s.touch(ctx, projectID, now)
	return m, nil
}

func (s *Service) ListMessages(ctx context.Context, uid, projectID string, limit int) ([]Message, error) {
	if _, err := s.access(ctx, uid, projectID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, projectID, clampLimit(limit, DefaultMessagesLimit))
}

func (s *Service) WatchProject(ctx context.Context, uid, projectID string, fn func(*Project) error) error {
	if _, err := s.access(ctx, uid, projectID); err != nil {
		return err
	}
	return s.watcher.WatchProject(ctx, projectID, func(p *Project) error {
		if !p.HasCollaborator(uid) {
			return fmt.Errorf("%w: access to this project was removed", ErrForbidden)
		}
		return fn(p)
	})
}

func (s *Service) WatchTasks(ctx context.Context, uid, projectID string, fn func([]Task) error) error {
	if _, err := s.access(ctx, uid, projectID); err != nil {
		return err
	}
	return s.watcher.WatchTasks(ctx, projectID, func(ts []Task) error {
		if err := s.stillCollaborator(ctx, uid, projectID); err != nil {
			return err
		}
		return fn(ts)
	})
}

func (s *Service) WatchMessages(ctx context.Context, uid, projectID string, limit int, fn func([]Message) error) error {
	if _, err := s.access(ctx, uid, projectID); err != nil {
		return err
	}
	return s.watcher.WatchMessages(ctx, projectID, clampLimit(limit, DefaultMessagesLimit), func(ms []Message) error {
		if err := s.stillCollaborator(ctx, uid, projectID); err != nil {
			return err
		}
		return fn(ms)
	})
}

// stillCollaborator re-reads the project before a subcollection snapshot is
// delivered, so removed collaborators stop receiving updates.
func (s *Service) stillCollaborator(ctx context.Context, uid, projectID string) error {
	_, err := s.access(ctx, uid, projectID)
	if IsErrForbidden(err) {
		return fmt.Errorf("%w: access to this project was removed", ErrForbidden)
	}
	return err
}

package project

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"collab/backend/internal/testutil"
)

type memStore struct {
	mu       sync.Mutex
	seq      int
	projects map[string]Project
	tasks    map[string]map[string]Task
	messages map[string][]Message
}

func newMemStore() *memStore {
	return &memStore{
		projects: map[string]Project{},
		tasks:    map[string]map[string]Task{},
		messages: map[string][]Message{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%d", prefix, m.seq)
}

func (m *memStore) CreateProject(_ context.Context, p Project) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextID("p")
	m.projects[p.ID] = p
	return &p, nil
}

func (m *memStore) GetProject(_ context.Context, id string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Collaborators = append([]string(nil), p.Collaborators...)
	return &p, nil
}

func (m *memStore) ListProjects(_ context.Context, uid string, limit int) ([]Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Project{}
	for _, p := range m.projects {
		if p.HasCollaborator(uid) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) UpdateProject(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "name":
			p.Name = v.(string)
		case "slug":
			p.Slug = v.(string)
		case "description":
			p.Description = v.(string)
		case "status":
			p.Status = v.(string)
		case "updatedAt":
			p.UpdatedAt = v.(time.Time)
		}
	}
	m.projects[id] = p
	return nil
}

func (m *memStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
	delete(m.tasks, id)
	delete(m.messages, id)
	return nil
}

func (m *memStore) AddCollaborator(_ context.Context, id, uid string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return ErrNotFound
	}
	for _, c := range p.Collaborators {
		if c == uid {
			p.UpdatedAt = now
			m.projects[id] = p
			return nil
		}
	}
	p.Collaborators = append(p.Collaborators, uid)
	p.UpdatedAt = now
	m.projects[id] = p
	return nil
}

func (m *memStore) RemoveCollaborator(_ context.Context, id, uid string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return ErrNotFound
	}
	kept := p.Collaborators[:0:0]
	for _, c := range p.Collaborators {
		if c != uid {
			kept = append(kept, c)
		}
	}
	p.Collaborators = kept
	p.UpdatedAt = now
	m.projects[id] = p
	return nil
}

func (m *memStore) CreateTask(_ context.Context, projectID string, t Task) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextID("t")
	t.ProjectID = projectID
	if m.tasks[projectID] == nil {
		m.tasks[projectID] = map[string]Task{}
	}
	m.tasks[projectID][t.ID] = t
	return &t, nil
}

func (m *memStore) GetTask(_ context.Context, projectID, taskID string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[projectID][taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *memStore) ListTasks(_ context.Context, projectID string) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Task{}
	for _, t := range m.tasks[projectID] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateTask(_ context.Context, projectID, taskID string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[projectID][taskID]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "title":
			t.Title = v.(string)
		case "status":
			t.Status = v.(string)
		case "assignee":
			t.Assignee = v.(string)
		case "updatedAt":
			t.UpdatedAt = v.(time.Time)
		}
	}
	m.tasks[projectID][taskID] = t
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, projectID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[projectID][taskID]; !ok {
		return ErrNotFound
	}
	delete(m.tasks[projectID], taskID)
	return nil
}

func (m *memStore) BatchUpdateTasks(_ context.Context, projectID string, updates []TaskStatusUpdate, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		if _, ok := m.tasks[projectID][u.TaskID]; !ok {
			return ErrNotFound
		}
	}
	for _, u := range updates {
		t := m.tasks[projectID][u.TaskID]
		t.Status = u.Status
		t.UpdatedAt = now
		m.tasks[projectID][u.TaskID] = t
	}
	return nil
}

func (m *memStore) CreateMessage(_ context.Context, projectID string, msg Message) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = m.nextID("m")
	m.messages[projectID] = append(m.messages[projectID], msg)
	return &msg, nil
}

func (m *memStore) ListMessages(_ context.Context, projectID string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.messages[projectID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Message(nil), all...), nil
}

// chanWatcher replays project states pushed on a channel.
type chanWatcher struct {
	projects chan *Project
	tasks    chan []Task
	messages chan []Message
}

func (w *chanWatcher) WatchProject(ctx context.Context, _ string, fn func(*Project) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p := <-w.projects:
			if err := fn(p); err != nil {
				return err
			}
		}
	}
}

func (w *chanWatcher) WatchTasks(ctx context.Context, _ string, fn func([]Task) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-w.tasks:
			if err := fn(ts); err != nil {
				return err
			}
		}
	}
}

func (w *chanWatcher) WatchMessages(ctx context.Context, _ string, _ int, fn func([]Message) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ms := <-w.messages:
			if err := fn(ms); err != nil {
				return err
			}
		}
	}
}

type fakeDirectory map[string]string

func (d fakeDirectory) UIDByEmail(_ context.Context, email string) (string, error) {
	uid, ok := d[email]
	if !ok {
		return "", ErrNotFound
	}
	return uid, nil
}

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	svc := NewService(store, &chanWatcher{projects: make(chan *Project)}, fakeDirectory{"bob@example.com": "bob"}, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, store
}

func TestCreateProject(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, "alice", CreateProjectInput{Name: "  Café Launch Plan "})
	require.NoError(t, err)
	assert.Equal(t, "Café Launch Plan", p.Name)
	assert.Equal(t, "cafe-launch-plan", p.Slug)
	assert.Equal(t, StatusPlanning, p.Status)
	assert.Equal(t, "alice", p.OwnerUID)
	assert.Equal(t, []string{"alice"}, p.Collaborators)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)

	_, err = svc.CreateProject(ctx, "alice", CreateProjectInput{Name: "   "})
	assert.True(t, IsErrBadRequest(err))
}

func TestProjectAccess(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreateProject(ctx, "alice", CreateProjectInput{Name: "Alpha"})
	require.NoError(t, err)

	_, err = svc.GetProject(ctx, "mallory", p.ID)
	assert.True(t, IsErrForbidden(err))

	_, err = svc.GetProject(ctx, "alice", "missing")
	assert.True(t, IsErrNotFound(err))

	_, err = svc.CreateTask(ctx, "mallory", p.ID, CreateTaskInput{Title: "x"})
	assert.True(t, IsErrForbidden(err))

	assert.True(t, IsErrForbidden(svc.DeleteProject(ctx, "mallory", p.ID)))
}

func TestCollaboratorsAreIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreateProject(ctx, "alice", CreateProjectInput{Name: "Alpha"})
	require.NoError(t, err)

	_, err = svc.AddCollaborator(ctx, "alice", p.ID, CollaboratorInput{UID: "bob"})
	require.NoError(t, err)
	got, err := svc.AddCollaborator(ctx, "alice", p.ID, CollaboratorInput{Email: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got.Collaborators)

	// collaborators can work on the project but not manage membership
	_, err = svc.CreateTask(ctx, "bob", p.ID, CreateTaskInput{Title: "Write brief"})
	require.NoError(t, err)
	_, err = svc.AddCollaborator(ctx, "bob", p.ID, CollaboratorInput{UID: "carol"})
	assert.True(t, IsErrForbidden(err))

	_, err = svc.RemoveCollaborator(ctx, "alice", p.ID, "alice")
	assert.True(t, IsErrBadRequest(err))

	got, err = svc.RemoveCollaborator(ctx, "alice", p.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, got.Collaborators)
	got, err = svc.RemoveCollaborator(ctx, "alice", p.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, got.Collaborators)

	_, err = svc.AddCollaborator(ctx, "alice", p.ID, CollaboratorInput{Email: "nobody@example.com"})
	assert.True(t, IsErrNotFound(err))
	_, err = svc.AddCollaborator(ctx, "alice", p.ID, CollaboratorInput{})
	assert.True(t, IsErrBadRequest(err))
}

func TestUpdateProject(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreateProject(ctx, "alice", CreateProjectInput{Name: "Alpha"})
	require.NoError(t, err)

	bad := "shipped"
	_, err = svc.UpdateProject(ctx, "alice", p.ID, UpdateProjectInput{Status: &bad})
	assert.True(t, IsErrBadRequest(err))

	_, err = svc.UpdateProject(ctx, "alice", p.ID, UpdateProjectInput{})
	assert.True(t, IsErrBadRequest(err))

	active, name := StatusActive, "Alpha Two"
	got, err := svc.UpdateProject(ctx, "alice", p.ID, UpdateProjectInput{Status: &active, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, "alpha-two", got.Slug)
}

func TestTasksLifecycle(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreateProject(ctx, "alice", CreateProjectInput{Name: "Alpha"})
	require.NoError(t, err)

	t1, err := svc.CreateTask(ctx, "alice", p.ID, CreateTaskInput{Title: "One"})
	require.NoError(t, err)
	assert.Equal(t, TaskTodo, t1.Status)
	t2, err := svc.CreateTask(ctx, "alice", p.ID, CreateTaskInput{Title: "Two", Status: TaskInProgress})
	require.NoError(t, err)

	_, err = svc.CreateTask(ctx, "alice", p.ID, CreateTaskInput{Title: "Three", Status: "blocked"})
	assert.True(t, IsErrBadRequest(err))

	done := TaskDone
	got, err := svc.UpdateTask(ctx, "alice", p.ID, t1.ID, UpdateTaskInput{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, TaskDone, got.Status)

	_, err = svc.UpdateTask(ctx, "alice", p.ID, "missing", UpdateTaskInput{Status: &done})
	assert.True(t, IsErrNotFound(err))

	err = svc.BatchUpdateTasks(ctx, "alice", p.ID, []TaskStatusUpdate{
		{TaskID: t1.ID, Status: TaskTodo},
		{TaskID: "missing", Status: TaskDone},
	})
	assert.True(t, IsErrNotFound(err))
	assert.Equal(t, TaskDone, store.tasks[p.ID][t1.ID].Status, "failed batch must not apply partially")

	require.NoError(t, svc.BatchUpdateTasks(ctx, "alice", p.ID, []TaskStatusUpdate{
		{TaskID: t1.ID, Status: TaskTodo},
		{TaskID: t2.ID, Status: TaskDone},
	}))
	tasks, err := svc.ListTasks(ctx, "alice", p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, TaskTodo, tasks[0].Status)
	assert.Equal(t, TaskDone, tasks[1].Status)

	assert.True(t, IsErrBadRequest(svc.BatchUpdateTasks(ctx, "alice", p.ID, nil)))
	assert.True(t, IsErrBadRequest(svc.BatchUpdateTasks(ctx, "alice", p.ID, []TaskStatusUpdate{{TaskID: t1.ID, Status: "nope"}})))

	require.NoError(t, svc.DeleteTask(ctx, "alice", p.ID, t2.ID))
	tasks, err = svc.ListTasks(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestMessages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreateProject(ctx, "alice", CreateProjectInput{Name: "Alpha"})
	require.NoError(t, err)

	_, err = svc.PostMessage(ctx, "alice", p.ID, PostMessageInput{Text: "  "})
	assert.True(t, IsErrBadRequest(err))

	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.PostMessage(ctx, "alice", p.ID, PostMessageInput{Text: text, AuthorName: "Alice"})
		require.NoError(t, err)
	}
	msgs, err := svc.ListMessages(ctx, "alice", p.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Text)
	assert.Equal(t, "three", msgs[1].Text)
	assert.Equal(t, "alice", msgs[1].AuthorUID)
}

func TestWatchProjectStopsWhenAccessRemoved(t *testing.T) {
	store := newMemStore()
	w := &chanWatcher{projects: make(chan *Project)}
	svc := NewService(store, w, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := svc.CreateProject(ctx, "alice", CreateProjectInput{Name: "Alpha"})
	require.NoError(t, err)
	_, err = svc.AddCollaborator(ctx, "alice", p.ID, CollaboratorInput{UID: "bob"})
	require.NoError(t, err)

	var seen []string
	done := make(chan error, 1)
	go func() {
		done <- svc.WatchProject(ctx, "bob", p.ID, func(p *Project) error {
			seen = append(seen, p.Name)
			return nil
		})
	}()

	w.projects <- &Project{ID: p.ID, Name: "v1", OwnerUID: "alice", Collaborators: []string{"alice", "bob"}}
	w.projects <- &Project{ID: p.ID, Name: "v2", OwnerUID: "alice", Collaborators: []string{"alice"}}

	select {
	case err := <-done:
		assert.True(t, IsErrForbidden(err))
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Equal(t, []string{"v1"}, seen)
}

type stampFailStore struct {
	*memStore
}

func (s stampFailStore) UpdateProject(ctx context.Context, id string, fields map[string]any) error {
	if _, ok := fields["updatedAt"]; ok && len(fields) == 1 {
		return errors.New("deadline exceeded")
	}
	return s.memStore.UpdateProject(ctx, id, fields)
}

func TestTouchFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	svc := NewService(stampFailStore{newMemStore()}, &chanWatcher{}, nil, zap.New(core))
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, "alice", CreateProjectInput{Name: "Alpha"})
	require.NoError(t, err)
	_, err = svc.CreateTask(ctx, "alice", p.ID, CreateTaskInput{Title: "Draft"})
	require.NoError(t, err)

	entries := logs.FilterMessage("project updatedAt stamp failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, p.ID, entries[0].ContextMap()["project"])
}

func TestWatchTasksStopsWhenAccessRemoved(t *testing.T) {
	store := newMemStore()
	w := &chanWatcher{tasks: make(chan []Task)}
	svc := NewService(store, w, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := svc.CreateProject(ctx, "alice", CreateProjectInput{Name: "Alpha"})
	require.NoError(t, err)
	_, err = svc.AddCollaborator(ctx, "alice", p.ID, CollaboratorInput{UID: "bob"})
	require.NoError(t, err)

	seen := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- svc.WatchTasks(ctx, "bob", p.ID, func(ts []Task) error {
			seen <- ts[0].Title
			return nil
		})
	}()

	w.tasks <- []Task{{Title: "plan"}}
	assert.Equal(t, "plan", <-seen)

	_, err = svc.RemoveCollaborator(ctx, "alice", p.ID, "bob")
	require.NoError(t, err)
	w.tasks <- []Task{{Title: "after removal"}}

	select {
	case err := <-done:
		assert.True(t, IsErrForbidden(err))
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Empty(t, seen)
}

func TestWatchMessagesStopsWhenAccessRemoved(t *testing.T) {
	store := newMemStore()
	w := &chanWatcher{messages: make(chan []Message)}
	svc := NewService(store, w, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := svc.CreateProject(ctx, "alice", CreateProjectInput{Name: "Alpha"})
	require.NoError(t, err)
	_, err = svc.AddCollaborator(ctx, "alice", p.ID, CollaboratorInput{UID: "bob"})
	require.NoError(t, err)

	seen := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- svc.WatchMessages(ctx, "bob", p.ID, 0, func(ms []Message) error {
			seen <- ms[0].Text
			return nil
		})
	}()

	w.messages <- []Message{{Text: "hello"}}
	assert.Equal(t, "hello", <-seen)

	_, err = svc.RemoveCollaborator(ctx, "alice", p.ID, "bob")
	require.NoError(t, err)
	w.messages <- []Message{{Text: "after removal"}}

	select {
	case err := <-done:
		assert.True(t, IsErrForbidden(err))
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Empty(t, seen)
}

func TestWatchEndsOnCancel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	p, err := svc.CreateProject(ctx, "alice", CreateProjectInput{Name: "Alpha"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svc.WatchTasks(ctx, "alice", p.ID, func([]Task) error { return nil }) }()
	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
}

func TestRepoAgainstEmulator(t *testing.T) {
	fs := testutil.Firestore(t)
	repo := NewRepo(fs)
	svc := NewService(repo, repo, nil, zap.NewNop())
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, "alice", CreateProjectInput{Name: "Emulated"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = svc.AddCollaborator(ctx, "alice", p.ID, CollaboratorInput{UID: "bob"})
		require.NoError(t, err)
	}
	got, err := svc.GetProject(ctx, "bob", p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got.Collaborators)

	list, err := svc.ListProjects(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	task, err := svc.CreateTask(ctx, "bob", p.ID, CreateTaskInput{Title: "Draft"})
	require.NoError(t, err)
	require.NoError(t, svc.BatchUpdateTasks(ctx, "alice", p.ID, []TaskStatusUpdate{{TaskID: task.ID, Status: TaskDone}}))
	tasks, err := svc.ListTasks(ctx, "alice", p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskDone, tasks[0].Status)

	watchCtx, cancel := context.WithCancel(ctx)
	first := make(chan []Task, 1)
	go func() {
		_ = svc.WatchTasks(watchCtx, "alice", p.ID, func(ts []Task) error {
			select {
			case first <- ts:
			default:
			}
			return nil
		})
	}()
	select {
	case ts := <-first:
		assert.Len(t, ts, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot received")
	}
	cancel()

	repo.taskLimit = 2
	for _, title := range []string{"Review", "Ship"} {
		_, err = svc.CreateTask(ctx, "alice", p.ID, CreateTaskInput{Title: title})
		require.NoError(t, err)
	}
	tasks, err = svc.ListTasks(ctx, "alice", p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Draft", tasks[0].Title)

	require.NoError(t, svc.DeleteProject(ctx, "alice", p.ID))
	_, err = svc.GetProject(ctx, "alice", p.ID)
	assert.True(t, IsErrNotFound(err))
}

package project

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const batchLimit = 450

// MaxTasks caps task lists and task watches. Larger projects get their
// oldest MaxTasks tasks.
const MaxTasks = 500

// Store is the persistence used by Service. Missing documents are reported
// as ErrNotFound.
type Store interface {
	CreateProject(ctx context.Context, p Project) (*Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context, uid string, limit int) ([]Project, error)
	UpdateProject(ctx context.Context, id string, fields map[string]any) error
	DeleteProject(ctx context.Context, id string) error
	AddCollaborator(ctx context.Context, id, uid string, now time.Time) error
	RemoveCollaborator(ctx context.Context, id, uid string, now time.Time) error

	CreateTask(ctx context.Context, projectID string, t Task) (*Task, error)
	GetTask(ctx context.Context, projectID, taskID string) (*Task, error)
	ListTasks(ctx context.Context, projectID string) ([]Task, error)
	UpdateTask(ctx context.Context, projectID, taskID string, fields map[string]any) error
	DeleteTask(ctx context.Context, projectID, taskID string) error
	BatchUpdateTasks(ctx context.Context, projectID string, updates []TaskStatusUpdate, now time.Time) error

	CreateMessage(ctx context.Context, projectID string, m Message) (*Message, error)
	ListMessages(ctx context.Context, projectID string, limit int) ([]Message, error)
}

type Repo struct {
	fs        *firestore.Client
	taskLimit int
}

func NewRepo(fs *firestore.Client) *Repo {
	return &Repo{fs: fs, taskLimit: MaxTasks}
}

func (r *Repo) projects() *firestore.CollectionRef {
	return r.fs.Collection("projects")
}

func (r *Repo) tasks(projectID string) *firestore.CollectionRef {
	return r.projects().Doc(projectID).Collection("tasks")
}

func (r *Repo) messages(projectID string) *firestore.CollectionRef {
	return r.projects().Doc(projectID).Collection("messages")
}

func notFound(err error) error {
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

func toUpdates(fields map[string]any) []firestore.Update {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ups := make([]firestore.Update, 0, len(keys))
	for _, k := range keys {
		ups = append(ups, firestore.Update{Path: k, Value: fields[k]})
	}
	return ups
}

func (r *Repo) CreateProject(ctx context.Context, p Project) (*Project, error) {
	ref := r.projects().NewDoc()
	p.ID = ref.ID
	if _, err := ref.Create(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) GetProject(ctx context.Context, id string) (*Project, error) {
	doc, err := r.projects().Doc(id).Get(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return projectFrom(doc)
}

func projectFrom(doc *firestore.DocumentSnapshot) (*Project, error) {
	var p Project
	if err := doc.DataTo(&p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = doc.Ref.ID
	}
	return &p, nil
}

func (r *Repo) ListProjects(ctx context.Context, uid string, limit int) ([]Project, error) {
	it := r.projects().
		Where("collaborators", "array-contains", uid).
		OrderBy("updatedAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer it.Stop()

	out := []Project{}
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		p, err := projectFrom(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *Repo) UpdateProject(ctx context.Context, id string, fields map[string]any) error {
	_, err := r.projects().Doc(id).Update(ctx, toUpdates(fields))
	return notFound(err)
}

// DeleteProject removes the tasks and messages subcollections before the
// project document itself.
func (r *Repo) DeleteProject(ctx context.Context, id string) error {
	for _, col := range []*firestore.CollectionRef{r.tasks(id), r.messages(id)} {
		if err := r.deleteCollection(ctx, col); err != nil {
			return err
		}
	}
	_, err := r.projects().Doc(id).Delete(ctx)
	return err
}

func (r *Repo) deleteCollection(ctx context.Context, col *firestore.CollectionRef) error {
	it := col.DocumentRefs(ctx)
	batch := r.fs.Batch()
	n := 0
	for {
		ref, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", col.ID, err)
		}
		batch.Delete(ref)
		n++
		if n%batchLimit == 0 {
			if _, err := batch.Commit(ctx); err != nil {
				return fmt.Errorf("failed to delete %s: %w", col.ID, err)
			}
			batch = r.fs.Batch()
		}
	}
	if n%batchLimit != 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("failed to delete %s: %w", col.ID, err)
		}
	}
	return nil
}

func (r *Repo) AddCollaborator(ctx context.Context, id, uid string, now time.Time) error {
	_, err := r.projects().Doc(id).Update(ctx, []firestore.Update{
		{Path: "collaborators", Value: firestore.ArrayUnion(uid)},
		{Path: "updatedAt", Value: now},
	})
	return notFound(err)
}

func (r *Repo) RemoveCollaborator(ctx context.Context, id, uid string, now time.Time) error {
	_, err := r.projects().Doc(id).Update(ctx, []firestore.Update{
		{Path: "collaborators", Value: firestore.ArrayRemove(uid)},
		{Path: "updatedAt", Value: now},
	})
	return notFound(err)
}

func (r *Repo) CreateTask(ctx context.Context, projectID string, t Task) (*Task, error) {
	ref := r.tasks(projectID).NewDoc()
	t.ID = ref.ID
	t.ProjectID = projectID
	if _, err := ref.Create(ctx, t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repo) GetTask(ctx context.Context, projectID, taskID string) (*Task, error) {
	doc, err := r.tasks(projectID).Doc(taskID).Get(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return taskFrom(doc)
}

func taskFrom(doc *firestore.DocumentSnapshot) (*Task, error) {
	var t Task
	if err := doc.DataTo(&t); err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = doc.Ref.ID
	}
	return &t, nil
}

func (r *Repo) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	docs, err := r.taskQuery(projectID).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return tasksFrom(docs)
}

func (r *Repo) taskQuery(projectID string) firestore.Query {
	return r.tasks(projectID).OrderBy("createdAt", firestore.Asc).Limit(r.taskLimit)
}

func tasksFrom(docs []*firestore.DocumentSnapshot) ([]Task, error) {
	out := make([]Task, 0, len(docs))
	for _, doc := range docs {
		t, err := taskFrom(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

func (r *Repo) UpdateTask(ctx context.Context, projectID, taskID string, fields map[string]any) error {
	_, err := r.tasks(projectID).Doc(taskID).Update(ctx, toUpdates(fields))
	return notFound(err)
}

func (r *Repo) DeleteTask(ctx context.Context, projectID, taskID string) error {
	_, err := r.tasks(projectID).Doc(taskID).Delete(ctx, firestore.Exists)
	return notFound(err)
}

// BatchUpdateTasks commits all status changes in a single write batch, so
// either every task is updated or none is.
func (r *Repo) BatchUpdateTasks(ctx context.Context, projectID string, updates []TaskStatusUpdate, now time.Time) error {
	batch := r.fs.Batch()
	for _, u := range updates {
		batch.Update(r.tasks(projectID).Doc(u.TaskID), []firestore.Update{
			{Path: "status", Value: u.Status},
			{Path: "updatedAt", Value: now},
		})
	}
	batch.Update(r.projects().Doc(projectID), []firestore.Update{{Path: "updatedAt", Value: now}})
	_, err := batch.Commit(ctx)
	return notFound(err)
}

func (r *Repo) CreateMessage(ctx context.Context, projectID string, m Message) (*Message, error) {
	ref := r.messages(projectID).NewDoc()
	m.ID = ref.ID
	if _, err := ref.Create(ctx, m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) recentMessages(projectID string, limit int) firestore.Query {
	return r.messages(projectID).OrderBy("createdAt", firestore.Desc).Limit(limit)
}

// ListMessages returns the newest limit messages, oldest first.
func (r *Repo) ListMessages(ctx context.Context, projectID string, limit int) ([]Message, error) {
	docs, err := r.recentMessages(projectID, limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return messagesFrom(docs)
}

func messagesFrom(docs []*firestore.DocumentSnapshot) ([]Message, error) {
	out := make([]Message, len(docs))
	for i, doc := range docs {
		var m Message
		if err := doc.DataTo(&m); err != nil {
			return nil, err
		}
		if m.ID == "" {
			m.ID = doc.Ref.ID
		}
		out[len(docs)-1-i] = m
	}
	return out, nil
}

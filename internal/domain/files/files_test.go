package files

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab/backend/internal/domain/project"
)

type fakeSigner struct{ calls int }

func (f *fakeSigner) SignBytes(_ context.Context, b []byte) ([]byte, error) {
	f.calls++
	return []byte("sig"), nil
}

type fakeProjects struct{}

func (fakeProjects) GetProject(_ context.Context, uid, projectID string) (*project.Project, error) {
	if projectID != "p1" {
		return nil, project.ErrNotFound
	}
	if uid != "alice" {
		return nil, project.ErrForbidden
	}
	return &project.Project{ID: "p1", OwnerUID: "alice", Collaborators: []string{"alice"}}, nil
}

type fakeLister struct{ prefix string }

func (f *fakeLister) List(_ context.Context, prefix string) ([]Object, error) {
	f.prefix = prefix
	return []Object{{Name: "brief.pdf", Path: prefix + "brief.pdf"}}, nil
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "project-brief.pdf", objectName("Project Brief.PDF"))
	assert.Equal(t, "resume", objectName("Résumé"))
	assert.Equal(t, "passwd", objectName("../../etc/passwd"))
	assert.Equal(t, "notes.txt", objectName(`C:\Users\me\notes.txt`))
	assert.Equal(t, "", objectName("   "))
	assert.Equal(t, "", objectName("!!!.png"))
}

func TestUploadURL(t *testing.T) {
	signer := &fakeSigner{}
	svc := NewService(Config{Bucket: "bucket", ServiceAccount: "signer@example.iam.gserviceaccount.com"}, signer, nil, fakeProjects{})
	ctx := context.Background()

	out, err := svc.UploadURL(ctx, "alice", "p1", UploadInput{FileName: "Project Brief.pdf", ContentType: "application/pdf"})
	require.NoError(t, err)
	assert.Equal(t, "PUT", out.Method)
	assert.Equal(t, "projects/p1/files/project-brief.pdf", out.Path)
	assert.Equal(t, 1, signer.calls)

	u, err := url.Parse(out.URL)
	require.NoError(t, err)
	assert.Contains(t, u.Path, "/bucket/projects/p1/files/project-brief.pdf")
	assert.Equal(t, "GOOG4-RSA-SHA256", u.Query().Get("X-Goog-Algorithm"))
	assert.NotEmpty(t, u.Query().Get("X-Goog-Signature"))

	_, err = svc.UploadURL(ctx, "mallory", "p1", UploadInput{FileName: "x.txt"})
	assert.True(t, project.IsErrForbidden(err))
	_, err = svc.UploadURL(ctx, "alice", "p2", UploadInput{FileName: "x.txt"})
	assert.True(t, project.IsErrNotFound(err))
	_, err = svc.UploadURL(ctx, "alice", "p1", UploadInput{FileName: "  "})
	assert.True(t, IsErrBadRequest(err))
}

func TestUploadURLMisconfigured(t *testing.T) {
	svc := NewService(Config{Bucket: "bucket"}, &fakeSigner{}, nil, fakeProjects{})
	_, err := svc.UploadURL(context.Background(), "alice", "p1", UploadInput{FileName: "a.txt"})
	assert.True(t, IsErrMisconfigured(err))
}

func TestList(t *testing.T) {
	lister := &fakeLister{}
	svc := NewService(Config{}, nil, lister, fakeProjects{})

	objs, err := svc.List(context.Background(), "alice", "p1")
	require.NoError(t, err)
	assert.Equal(t, "projects/p1/files/", lister.prefix)
	assert.Len(t, objs, 1)

	_, err = svc.List(context.Background(), "mallory", "p1")
	assert.True(t, project.IsErrForbidden(err))
}

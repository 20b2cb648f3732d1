package files

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	credentialspb "cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"collab/backend/internal/domain/project"
	"collab/backend/internal/utils"
)

const (
	defaultExpiry = 15 * time.Minute
	maxFileName   = 200
)

var (
	ErrBadRequest    = errors.New("bad request")
	ErrMisconfigured = errors.New("file uploads are not configured")
)

func IsErrBadRequest(err error) bool    { return errors.Is(err, ErrBadRequest) }
func IsErrMisconfigured(err error) bool { return errors.Is(err, ErrMisconfigured) }

// Signer signs V4 URL payloads on behalf of a service account.
type Signer interface {
	SignBytes(ctx context.Context, b []byte) ([]byte, error)
}

// IAMSigner signs with the IAM Credentials SignBlob API, so the server needs
// no private key of its own.
type IAMSigner struct {
	Client         *credentials.IamCredentialsClient
	ServiceAccount string
}

func (s IAMSigner) SignBytes(ctx context.Context, b []byte) ([]byte, error) {
	resp, err := s.Client.SignBlob(ctx, &credentialspb.SignBlobRequest{
		Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.ServiceAccount),
		Payload: b,
	})
	if err != nil {
		return nil, err
	}
	return resp.SignedBlob, nil
}

type Object struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Lister lists stored objects under a prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]Object, error)
}

type BucketLister struct {
	Bucket *storage.BucketHandle
}

func (l BucketLister) List(ctx context.Context, prefix string) ([]Object, error) {
	it := l.Bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	out := []Object{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Object{
			Name:        path.Base(attrs.Name),
			Path:        attrs.Name,
			ContentType: attrs.ContentType,
			Size:        attrs.Size,
			UpdatedAt:   attrs.Updated,
		})
	}
	return out, nil
}

// Projects checks that a caller collaborates on a project.
type Projects interface {
	GetProject(ctx context.Context, uid, projectID string) (*project.Project, error)
}

type Config struct {
	Bucket         string
	ServiceAccount string
}

type Service struct {
	cfg      Config
	signer   Signer
	lister   Lister
	projects Projects
	now      func() time.Time
}

func NewService(cfg Config, signer Signer, lister Lister, projects Projects) *Service {
	return &Service{
		cfg:      cfg,
		signer:   signer,
		lister:   lister,
		projects: projects,
		now:      time.Now,
	}
}

type UploadInput struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType,omitempty"`
}

type UploadURL struct {
	URL         string    `json:"url"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	ContentType string    `json:"contentType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func prefixFor(projectID string) string {
	return "projects/" + projectID + "/files/"
}

// objectName slugs the base name and keeps a lowercased extension.
func objectName(fileName string) string {
	fileName = path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	ext := strings.ToLower(path.Ext(fileName))
	base := utils.Slugify(strings.TrimSuffix(fileName, path.Ext(fileName)))
	ext = utils.Slugify(strings.TrimPrefix(ext, "."))
	if base == "" {
		return ""
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func (s *Service) UploadURL(ctx context.Context, uid, projectID string, in UploadInput) (*UploadURL, error) {
	if s.cfg.Bucket == "" || s.cfg.ServiceAccount == "" || s.signer == nil {
		return nil, ErrMisconfigured
	}
	if _, err := s.projects.GetProject(ctx, uid, projectID); err != nil {
		return nil, err
	}
	if len(in.FileName) > maxFileName {
		return nil, fmt.Errorf("%w: fileName too long", ErrBadRequest)
	}
	name := objectName(in.FileName)
	if name == "" {
		return nil, fmt.Errorf("%w: fileName is required", ErrBadRequest)
	}
	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	object := prefixFor(projectID) + name
	exp := s.now().Add(defaultExpiry)
	url, err := storage.SignedURL(s.cfg.Bucket, object, &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "PUT",
		Expires:        exp,
		ContentType:    contentType,
		GoogleAccessID: s.cfg.ServiceAccount,
		SignBytes: func(b []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, b)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign url: %w", err)
	}
	return &UploadURL{URL: url, Method: "PUT", Path: object, ContentType: contentType, ExpiresAt: exp.UTC()}, nil
}

func (s *Service) List(ctx context.Context, uid, projectID string) ([]Object, error) {
	if s.lister == nil {
		return nil, ErrMisconfigured
	}
	if _, err := s.projects.GetProject(ctx, uid, projectID); err != nil {
		return nil, err
	}
	return s.lister.List(ctx, prefixFor(projectID))
}

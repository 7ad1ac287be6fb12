package letters

import (
	"context"
	"errors"
	"strings"
)

// ErrNoObjectStore is returned for an object ref when MinIO is not configured.
var ErrNoObjectStore = errors.New("object storage is not configured")

type Backend interface {
	PutLetter(ctx context.Context, requestID, key, content string) (string, error)
	GetLetter(ctx context.Context, ref string) (string, error)
	DeleteLetter(ctx context.Context, ref string) error
}

// Router writes new letters to object storage when available and otherwise
// to the database. Reads and deletes follow the ref's scheme, so letters
// written before MinIO was enabled stay readable.
type Router struct {
	database Backend
	objects  Backend
}

// NewRouter builds a router; objects may be nil.
func NewRouter(database, objects Backend) *Router {
	return &Router{database: database, objects: objects}
}

func (r *Router) PutLetter(ctx context.Context, requestID, key, content string) (string, error) {
	if r.objects != nil {
		return r.objects.PutLetter(ctx, requestID, key, content)
	}
	return r.database.PutLetter(ctx, requestID, key, content)
}

func (r *Router) GetLetter(ctx context.Context, ref string) (string, error) {
	backend, err := r.backend(ref)
	if err != nil {
		return "", err
	}
	return backend.GetLetter(ctx, ref)
}

func (r *Router) DeleteLetter(ctx context.Context, ref string) error {
	backend, err := r.backend(ref)
	if err != nil {
		return err
	}
	return backend.DeleteLetter(ctx, ref)
}

func (r *Router) backend(ref string) (Backend, error) {
	if strings.HasPrefix(ref, refScheme) {
		if r.objects == nil {
			return nil, ErrNoObjectStore
		}
		return r.objects, nil
	}
	return r.database, nil
}

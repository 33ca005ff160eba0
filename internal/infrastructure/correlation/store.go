package correlation

import (
	"context"
	"fmt"

	"github.com/avolkov/docpipe/internal/core/domain"
	"github.com/avolkov/docpipe/internal/core/ports"
)

// Store keeps resumption handles as token objects next to the extraction
// output, under the destination bucket's reserved token namespace. The
// completion side only knows the document key, so the key is the lookup path.
type Store struct {
	objects ports.ObjectStore
	bucket  string
}

func New(objects ports.ObjectStore, bucket string) *Store {
	return &Store{objects: objects, bucket: bucket}
}

func (s *Store) PutHandle(ctx context.Context, documentKey string, handle []byte) error {
	if err := s.objects.Put(ctx, s.bucket, domain.TokenPath(documentKey), handle); err != nil {
		return domain.WrapError(domain.ErrTemporary, "store handle", err)
	}
	return nil
}

func (s *Store) GetHandle(ctx context.Context, documentKey string) ([]byte, error) {
	handle, err := s.objects.Get(ctx, s.bucket, domain.TokenPath(documentKey), "")
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, domain.WrapError(domain.ErrCorrelationNotFound, "load handle", fmt.Errorf("key %s", documentKey))
		}
		return nil, domain.WrapError(domain.ErrTemporary, "load handle", err)
	}
	return handle, nil
}

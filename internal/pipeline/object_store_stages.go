package pipeline

import (
	"context"
	"errors"

	"github.com/gbmarques/dicomflow/internal/storage"
)

// ObjectStoreFetcher reads dataset objects from the S3-compatible store;
// the task source is the object key.
type ObjectStoreFetcher struct {
	Storage *storage.Client
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	return f.Storage.ReadObject(ctx, source)
}

// ObjectStoreEmitter writes rendered images back to the store. The resolved
// export path doubles as the object key; object stores need no directory
// bootstrapping.
type ObjectStoreEmitter struct {
	Storage *storage.Client
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, path string, data []byte, format string) error {
	if e.Storage == nil {
		return errors.New("storage client is required")
	}
	return e.Storage.WriteObject(ctx, path, data, contentTypeForFormat(format))
}

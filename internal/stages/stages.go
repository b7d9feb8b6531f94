package stages

import (
	"errors"
	"io/fs"

	"eduscale/internal/services"
	"eduscale/internal/storage"
)

// Limits bound what the classify and extract stages will process.
type Limits struct {
	MaxFileBytes      int64
	MaxArchiveBytes   int64
	MaxArchiveMembers int
}

// readObject fetches an object and classifies retrieval failures: a missing
// object is a client problem (the notification references something that no
// longer exists), everything else is worth retrying.
func readObject(store *storage.Store, stage, bucket, objectPath string) ([]byte, error) {
	data, err := store.Get(bucket, objectPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, stage, "read object", objectPath, err)
		}
		return nil, services.Wrap(services.ErrTransient, stage, "read object", objectPath, err)
	}
	return data, nil
}

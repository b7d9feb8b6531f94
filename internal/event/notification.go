package event

import (
	"time"

	"github.com/google/uuid"
)

// Notification is an immutable record describing one storage-finalize
// occurrence. It is produced once, when an object becomes visible in the
// store, and never mutated afterwards.
type Notification struct {
	ID          string    `json:"id"`
	Bucket      string    `json:"bucket"`
	ObjectPath  string    `json:"object_path"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// New builds a notification for a freshly finalized object.
func New(bucket, objectPath, contentType string, sizeBytes int64) Notification {
	now := time.Now().UTC()
	return Notification{
		ID:          uuid.NewString(),
		Bucket:      bucket,
		ObjectPath:  objectPath,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// FileID derives the pipeline file identifier from the notification's object
// path.
func (n Notification) FileID() string {
	id, _, _ := ParseObjectPath(n.ObjectPath)
	return id
}

// RegionID derives the region identifier from the notification's object path.
func (n Notification) RegionID() string {
	_, region, _ := ParseObjectPath(n.ObjectPath)
	return region
}

package storage

import (
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const tempSuffix = ".part"

// ObjectInfo describes a finalized object.
type ObjectInfo struct {
	Bucket      string
	ObjectPath  string
	ContentType string
	SizeBytes   int64
	ModTime     time.Time
}

// Store is a bucket-rooted local object store. Objects become visible
// atomically: writes land in a temporary file that is renamed into place on
// finalize, so readers and the uploads watcher never observe partial
// content.
type Store struct {
	root string
}

// NewStore opens (creating if needed) an object store rooted at dir.
func NewStore(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("storage root must be set")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// BucketDir returns the directory backing a bucket.
func (s *Store) BucketDir(bucket string) string {
	return filepath.Join(s.root, bucket)
}

func (s *Store) objectFile(bucket, objectPath string) (string, error) {
	// Traversal segments must be rejected on the raw path: Clean would
	// silently resolve them back inside the bucket.
	for _, segment := range strings.Split(objectPath, "/") {
		if segment == ".." {
			return "", fmt.Errorf("invalid object path %q", objectPath)
		}
	}
	cleaned := path.Clean("/" + objectPath)
	if cleaned == "/" {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(cleaned[1:])), nil
}

// Put finalizes an object: the payload is written to a temporary sibling and
// renamed into place.
func (s *Store) Put(bucket, objectPath string, data []byte) (ObjectInfo, error) {
	target, err := s.objectFile(bucket, objectPath)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return ObjectInfo{}, fmt.Errorf("create object directory: %w", err)
	}

	temp := target + "." + uuid.NewString() + tempSuffix
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return ObjectInfo{}, fmt.Errorf("write object %s: %w", objectPath, err)
	}
	if err := os.Rename(temp, target); err != nil {
		_ = os.Remove(temp)
		return ObjectInfo{}, fmt.Errorf("finalize object %s: %w", objectPath, err)
	}

	return s.Stat(bucket, objectPath)
}

// Get reads a finalized object's full payload.
func (s *Store) Get(bucket, objectPath string) ([]byte, error) {
	target, err := s.objectFile(bucket, objectPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, objectPath, err)
	}
	return data, nil
}

// Stat returns metadata for a finalized object.
func (s *Store) Stat(bucket, objectPath string) (ObjectInfo, error) {
	target, err := s.objectFile(bucket, objectPath)
	if err != nil {
		return ObjectInfo{}, err
	}
	info, err := os.Stat(target)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat object %s/%s: %w", bucket, objectPath, err)
	}
	return ObjectInfo{
		Bucket:      bucket,
		ObjectPath:  objectPath,
		ContentType: ContentTypeFor(objectPath),
		SizeBytes:   info.Size(),
		ModTime:     info.ModTime().UTC(),
	}, nil
}

// Exists reports whether an object has been finalized.
func (s *Store) Exists(bucket, objectPath string) bool {
	_, err := s.Stat(bucket, objectPath)
	return err == nil
}

// URI renders the canonical object URI used on pipeline records.
func URI(bucket, objectPath string) string {
	return "store://" + bucket + "/" + strings.TrimPrefix(objectPath, "/")
}

// ContentTypeFor guesses a content type from the object path's extension.
func ContentTypeFor(objectPath string) string {
	if ct := mime.TypeByExtension(path.Ext(objectPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// IsTempPath reports whether a filesystem path refers to an in-flight write.
func IsTempPath(p string) bool {
	return strings.HasSuffix(p, tempSuffix)
}

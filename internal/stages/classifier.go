package stages

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"eduscale/internal/classify"
	"eduscale/internal/event"
	"eduscale/internal/logging"
	"eduscale/internal/pipeline"
	"eduscale/internal/services"
	"eduscale/internal/status"
	"eduscale/internal/storage"
)

// Classifier decides a file's content category and moves it under the
// classified/ prefix where the extract rule picks it up. Zip archives are
// expanded instead: members are re-uploaded under uploads/ and re-enter the
// pipeline as independent files while the archive itself completes.
type Classifier struct {
	store  *storage.Store
	bucket string
	limits Limits
	logger *slog.Logger
}

func NewClassifier(store *storage.Store, bucket string, limits Limits, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Classifier{
		store:  store,
		bucket: bucket,
		limits: limits,
		logger: logger.With(logging.String(logging.FieldComponent, "classify")),
	}
}

func (c *Classifier) Stage() status.Stage {
	return status.StageClassify
}

func (c *Classifier) Process(ctx context.Context, n event.Notification) (pipeline.Output, error) {
	fileID, regionID, originalName := event.ParseObjectPath(n.ObjectPath)

	var warnings []string
	if regionID == event.RegionUnknown {
		warnings = append(warnings, fmt.Sprintf("object path %q carries no region, using %q", n.ObjectPath, event.RegionUnknown))
	}
	if c.limits.MaxFileBytes > 0 && n.SizeBytes > c.limits.MaxFileBytes {
		return pipeline.Output{}, services.Wrap(services.ErrValidation, "classify", "size guard",
			fmt.Sprintf("object is %d bytes, limit is %d", n.SizeBytes, c.limits.MaxFileBytes), nil)
	}

	category := classify.MimeType(n.ContentType)
	if category == classify.CategoryArchive {
		return c.expandArchive(n, fileID, regionID, warnings)
	}

	data, err := readObject(c.store, "classify", n.Bucket, n.ObjectPath)
	if err != nil {
		return pipeline.Output{}, err
	}

	target := fmt.Sprintf("classified/%s/%s/%s_%s", category, regionID, fileID, originalName)
	info, err := c.store.Put(c.bucket, target, data)
	if err != nil {
		return pipeline.Output{}, services.Wrap(services.ErrTransient, "classify", "write classified object", target, err)
	}

	c.logger.Info("file classified",
		logging.String(logging.FieldFileID, fileID),
		logging.String("category", string(category)),
		logging.Int64("size_bytes", info.SizeBytes),
	)
	return pipeline.Output{
		Metadata: map[string]any{
			"category":      string(category),
			"original_name": originalName,
		},
		Warnings: warnings,
		Forward:  []event.Notification{event.New(c.bucket, target, n.ContentType, info.SizeBytes)},
	}, nil
}

// expandArchive re-uploads each archive member as its own file under the
// uploads/ prefix; the storage watcher turns those finalizes into fresh
// notifications. The archive record completes here, members progress on
// their own.
func (c *Classifier) expandArchive(n event.Notification, fileID, regionID string, warnings []string) (pipeline.Output, error) {
	done := func(members int, extra ...string) pipeline.Output {
		return pipeline.Output{
			Metadata: map[string]any{
				"category":        string(classify.CategoryArchive),
				"archive_members": members,
			},
			Warnings: append(warnings, extra...),
			Final:    true,
		}
	}

	if c.limits.MaxArchiveBytes > 0 && n.SizeBytes > c.limits.MaxArchiveBytes {
		return done(0, fmt.Sprintf("archive is %d bytes, limit is %d, skipped", n.SizeBytes, c.limits.MaxArchiveBytes)), nil
	}

	data, err := readObject(c.store, "classify", n.Bucket, n.ObjectPath)
	if err != nil {
		return pipeline.Output{}, err
	}
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return pipeline.Output{}, services.Wrap(services.ErrValidation, "classify", "open archive", n.ObjectPath, err)
	}

	regular := 0
	for _, member := range reader.File {
		if !member.FileInfo().IsDir() {
			regular++
		}
	}
	if c.limits.MaxArchiveMembers > 0 && regular > c.limits.MaxArchiveMembers {
		return done(0, fmt.Sprintf("archive holds %d members, limit is %d, skipped", regular, c.limits.MaxArchiveMembers)), nil
	}

	expanded := 0
	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}
		memberName := path.Base(member.Name)
		if isArchiveName(memberName) {
			warnings = append(warnings, fmt.Sprintf("nested archive %q not expanded", member.Name))
			continue
		}
		if c.limits.MaxFileBytes > 0 && member.UncompressedSize64 > uint64(c.limits.MaxFileBytes) {
			warnings = append(warnings, fmt.Sprintf("archive member %q exceeds the size limit, skipped", member.Name))
			continue
		}

		content, err := readMember(member)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("archive member %q unreadable: %v", member.Name, err))
			continue
		}

		memberID := fileID + "-" + memberSlug(memberName)
		target := fmt.Sprintf("uploads/%s/%s_%s", regionID, memberID, memberName)
		if _, err := c.store.Put(c.bucket, target, content); err != nil {
			return pipeline.Output{}, services.Wrap(services.ErrTransient, "classify", "write archive member", target, err)
		}
		expanded++
	}

	c.logger.Info("archive expanded",
		logging.String(logging.FieldFileID, fileID),
		logging.Int("members", expanded),
	)
	return done(expanded), nil
}

func readMember(member *zip.File) ([]byte, error) {
	rc, err := member.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func isArchiveName(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".zip", ".tar", ".gz", ".tgz", ".bz2", ".7z", ".rar":
		return true
	}
	return false
}

// memberSlug derives a file-id suffix from a member name's stem, keeping it
// path- and underscore-safe.
func memberSlug(name string) string {
	stem := strings.TrimSuffix(name, path.Ext(name))
	var b strings.Builder
	for _, r := range strings.ToLower(stem) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "member"
	}
	return slug
}

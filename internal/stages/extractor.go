package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"eduscale/internal/classify"
	"eduscale/internal/event"
	"eduscale/internal/logging"
	"eduscale/internal/pipeline"
	"eduscale/internal/services"
	"eduscale/internal/status"
	"eduscale/internal/storage"
)

const textArtifactContentType = "text/plain; charset=utf-8"

// Extractor turns a classified object into the canonical text artifact at
// text/{fileID}.txt. Only the text category yields real content; other
// categories would need recognition services this deployment does not run,
// so they produce a placeholder artifact with an audit warning instead of
// failing the file.
type Extractor struct {
	store  *storage.Store
	bucket string
	limits Limits
	logger *slog.Logger
}

func NewExtractor(store *storage.Store, bucket string, limits Limits, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extractor{
		store:  store,
		bucket: bucket,
		limits: limits,
		logger: logger.With(logging.String(logging.FieldComponent, "extract")),
	}
}

func (e *Extractor) Stage() status.Stage {
	return status.StageExtract
}

func (e *Extractor) Process(ctx context.Context, n event.Notification) (pipeline.Output, error) {
	fileID, regionID, _ := event.ParseObjectPath(n.ObjectPath)

	if e.limits.MaxFileBytes > 0 && n.SizeBytes > e.limits.MaxFileBytes {
		return pipeline.Output{}, services.Wrap(services.ErrValidation, "extract", "size guard",
			fmt.Sprintf("object is %d bytes, limit is %d", n.SizeBytes, e.limits.MaxFileBytes), nil)
	}

	category := categoryFromPath(n.ObjectPath)
	if category == "" {
		category = classify.MimeType(n.ContentType)
	}

	data, err := readObject(e.store, "extract", n.Bucket, n.ObjectPath)
	if err != nil {
		return pipeline.Output{}, err
	}

	var (
		body     string
		method   string
		warnings []string
	)
	if category.Extractable() {
		body = string(data)
		method = "direct"
	} else {
		body = fmt.Sprintf("[no text extracted for category %s]\n", category)
		method = "none"
		warnings = append(warnings, fmt.Sprintf("no extraction method for category %s, placeholder artifact written", category))
	}
	wordCount := len(strings.Fields(body))

	artifact := renderArtifact(artifactHeader{
		FileID:    fileID,
		RegionID:  regionID,
		Category:  string(category),
		Method:    method,
		WordCount: wordCount,
		Source:    storage.URI(n.Bucket, n.ObjectPath),
	}, body)

	textPath := "text/" + fileID + ".txt"
	info, err := e.store.Put(e.bucket, textPath, []byte(artifact))
	if err != nil {
		return pipeline.Output{}, services.Wrap(services.ErrTransient, "extract", "write text artifact", textPath, err)
	}

	e.logger.Info("text artifact written",
		logging.String(logging.FieldFileID, fileID),
		logging.String("method", method),
		logging.Int("word_count", wordCount),
	)
	return pipeline.Output{
		TextURI: storage.URI(e.bucket, textPath),
		Metadata: map[string]any{
			"extraction_method": method,
			"word_count":        wordCount,
		},
		Warnings: warnings,
		Forward:  []event.Notification{event.New(e.bucket, textPath, textArtifactContentType, info.SizeBytes)},
	}, nil
}

// categoryFromPath recovers the category segment of a classified/ object
// path; empty when the path follows a different layout.
func categoryFromPath(objectPath string) classify.Category {
	segments := strings.Split(strings.Trim(objectPath, "/"), "/")
	if len(segments) >= 4 && segments[0] == "classified" {
		return classify.Category(segments[1])
	}
	return ""
}

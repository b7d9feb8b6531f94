package stages

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"eduscale/internal/event"
	"eduscale/internal/logging"
	"eduscale/internal/pipeline"
	"eduscale/internal/services"
	"eduscale/internal/status"
	"eduscale/internal/storage"
	"eduscale/internal/warehouse"
)

// Structurer converts a text artifact into a staged row batch at
// clean/{fileID}.json. Each non-empty line of the artifact body becomes one
// row; row numbers are stable across re-runs so the warehouse merge stays
// idempotent.
type Structurer struct {
	store  *storage.Store
	bucket string
	logger *slog.Logger
}

func NewStructurer(store *storage.Store, bucket string, logger *slog.Logger) *Structurer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Structurer{
		store:  store,
		bucket: bucket,
		logger: logger.With(logging.String(logging.FieldComponent, "structure")),
	}
}

func (s *Structurer) Stage() status.Stage {
	return status.StageStructure
}

func (s *Structurer) Process(ctx context.Context, n event.Notification) (pipeline.Output, error) {
	data, err := readObject(s.store, "structure", n.Bucket, n.ObjectPath)
	if err != nil {
		return pipeline.Output{}, err
	}

	header, body, err := parseArtifact(string(data))
	if err != nil {
		return pipeline.Output{}, services.Wrap(services.ErrValidation, "structure", "parse text artifact", n.ObjectPath, err)
	}

	batch := warehouse.StagedBatch{
		FileID:   header.FileID,
		RegionID: header.RegionID,
	}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			continue
		}
		batch.Rows = append(batch.Rows, warehouse.StagedRow{
			RowNo:   len(batch.Rows) + 1,
			Content: line,
		})
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return pipeline.Output{}, services.Wrap(services.ErrValidation, "structure", "encode staged batch", header.FileID, err)
	}

	cleanPath := "clean/" + header.FileID + ".json"
	info, err := s.store.Put(s.bucket, cleanPath, payload)
	if err != nil {
		return pipeline.Output{}, services.Wrap(services.ErrTransient, "structure", "write staged batch", cleanPath, err)
	}

	s.logger.Info("batch staged",
		logging.String(logging.FieldFileID, header.FileID),
		logging.Int("rows", len(batch.Rows)),
	)
	return pipeline.Output{
		Metadata: map[string]any{"rows_staged": len(batch.Rows)},
		Forward:  []event.Notification{event.New(s.bucket, cleanPath, "application/json", info.SizeBytes)},
	}, nil
}

package status

import (
	"strings"
	"time"
)

// Stage identifies a file's position in the processing pipeline.
type Stage string

const (
	StageClassify  Stage = "classify"
	StageExtract   Stage = "extract"
	StageStructure Stage = "structure"
	StageLoad      Stage = "load"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

var processingOrder = []Stage{StageClassify, StageExtract, StageStructure, StageLoad, StageDone}

var stageRank = func() map[Stage]int {
	ranks := make(map[Stage]int, len(processingOrder))
	for i, stage := range processingOrder {
		ranks[stage] = i
	}
	return ranks
}()

// ProcessingStages returns the ordered list of non-terminal stages.
func ProcessingStages() []Stage {
	return []Stage{StageClassify, StageExtract, StageStructure, StageLoad}
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == StageFailed {
		return normalized, true
	}
	if _, ok := stageRank[normalized]; ok {
		return normalized, true
	}
	return "", false
}

// Rank returns the stage's position in the forward progression. StageFailed
// has no rank; Terminal stages compare greater than every processing stage.
func (s Stage) Rank() (int, bool) {
	rank, ok := stageRank[s]
	return rank, ok
}

// Terminal reports whether the stage ends a file's progression.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Next returns the stage that follows s in the forward progression.
func (s Stage) Next() (Stage, bool) {
	rank, ok := stageRank[s]
	if !ok || rank+1 >= len(processingOrder) {
		return "", false
	}
	return processingOrder[rank+1], true
}

// Before reports whether s precedes other in the forward progression.
// Terminal failed never precedes anything.
func (s Stage) Before(other Stage) bool {
	left, okLeft := stageRank[s]
	right, okRight := stageRank[other]
	return okLeft && okRight && left < right
}

// Record tracks a single file's progress through the pipeline.
type Record struct {
	FileID        string         `json:"file_id"`
	RegionID      string         `json:"region_id"`
	CurrentStage  Stage          `json:"current_stage"`
	TextURI       string         `json:"text_uri,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	AuditWarnings []string       `json:"audit_warnings,omitempty"`
	LastUpdated   time.Time      `json:"last_updated"`
}

// NewRecord creates a record entering the pipeline at the given stage.
func NewRecord(fileID, regionID string, stage Stage) *Record {
	return &Record{
		FileID:       fileID,
		RegionID:     regionID,
		CurrentStage: stage,
		Metadata:     map[string]any{},
		LastUpdated:  time.Now().UTC(),
	}
}

// AddWarning appends an audit warning to the record.
func (r *Record) AddWarning(message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	r.AuditWarnings = append(r.AuditWarnings, message)
}

// SetMetadata stores a metadata value on the record.
func (r *Record) SetMetadata(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[key] = value
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Metadata != nil {
		cp.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	if r.AuditWarnings != nil {
		cp.AuditWarnings = append([]string(nil), r.AuditWarnings...)
	}
	return &cp
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// BulletinJobStatus captures background job lifecycle states.
type BulletinJobStatus string

const (
	BulletinJobQueued     BulletinJobStatus = "QUEUED"
	BulletinJobProcessing BulletinJobStatus = "PROCESSING"
	BulletinJobFinished   BulletinJobStatus = "FINISHED"
	BulletinJobFailed     BulletinJobStatus = "FAILED"
)

// BulletinOrder selects the page order of a bulk bulletin document.
type BulletinOrder string

const (
	BulletinOrderRoster BulletinOrder = "roster"
	BulletinOrderRank   BulletinOrder = "rank"
)

// BulletinJob is the persisted metadata of a class-wide bulletin generation.
type BulletinJob struct {
	ID           string             `db:"id" json:"id"`
	ClassID      string             `db:"class_id" json:"class_id"`
	TermID       string             `db:"term_id" json:"term_id"`
	Params       BulletinJobParams  `db:"params" json:"params"`
	Status       BulletinJobStatus  `db:"status" json:"status"`
	Progress     int                `db:"progress" json:"progress"`
	ResultURL    *string            `db:"result_url" json:"result_url,omitempty"`
	Summary      BulletinJobSummary `db:"summary" json:"summary"`
	CreatedBy    string             `db:"created_by" json:"created_by"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time         `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string            `db:"error_message" json:"error_message,omitempty"`
}

// BulletinJobParams stores request-scoped options persisted as JSONB.
type BulletinJobParams struct {
	Order           BulletinOrder     `json:"order,omitempty"`
	Strategy        RankStrategy      `json:"strategy,omitempty"`
	CouncilComments map[string]string `json:"councilComments,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p BulletinJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal bulletin job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *BulletinJobParams) Scan(value interface{}) error {
	data, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("scan bulletin job params: %w", err)
	}
	if len(data) == 0 {
		*p = BulletinJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal bulletin job params: %w", err)
	}
	return nil
}

// BulletinFailure records a student whose bulletin could not be produced.
type BulletinFailure struct {
	StudentID string `json:"studentId"`
	Reason    string `json:"reason"`
}

// BulletinJobSummary reports per-student outcomes of a bulk generation.
type BulletinJobSummary struct {
	Succeeded []string          `json:"succeeded,omitempty"`
	Failed    []BulletinFailure `json:"failed,omitempty"`
}

// Value marshals the summary to JSON for persistence.
func (s BulletinJobSummary) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal bulletin job summary: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the summary struct.
func (s *BulletinJobSummary) Scan(value interface{}) error {
	data, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("scan bulletin job summary: %w", err)
	}
	if len(data) == 0 {
		*s = BulletinJobSummary{}
		return nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("unmarshal bulletin job summary: %w", err)
	}
	return nil
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
}

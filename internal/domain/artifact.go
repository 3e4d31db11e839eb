package domain

import (
	"errors"
	"strings"
	"time"
)

// Artefact is a content-addressed byte output of a run or step. The record is
// keyed by (run, step, label); rewriting the same label overwrites the stored
// bytes and always recomputes the checksum.
type Artefact struct {
	ID              string
	RunID           string
	StepID          string
	Label           string
	ObjectKey       string
	MediaType       string
	SHA256          string
	SizeBytes       int64
	Metadata        Metadata
	CreatedAt       time.Time
	CreatedBy       string
	IntegritySHA256 string
}

func (a Artefact) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("artefact id is required")
	}
	if strings.TrimSpace(a.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(a.Label) == "" {
		return errors.New("artefact label is required")
	}
	if strings.TrimSpace(a.ObjectKey) == "" {
		return errors.New("object key is required")
	}
	if strings.TrimSpace(a.SHA256) == "" {
		return errors.New("artefact sha256 is required")
	}
	if a.SizeBytes < 0 {
		return errors.New("size bytes must be >= 0")
	}
	return nil
}

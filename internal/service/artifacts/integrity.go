package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
)

type artefactIntegrityInput struct {
	RunID     string          `json:"run_id"`
	StepID    string          `json:"step_id,omitempty"`
	Label     string          `json:"label"`
	ObjectKey string          `json:"object_key"`
	MediaType string          `json:"media_type,omitempty"`
	SHA256    string          `json:"sha256"`
	SizeBytes int64           `json:"size_bytes"`
	Metadata  domain.Metadata `json:"metadata"`
	CreatedBy string          `json:"created_by,omitempty"`
}

func artefactIntegritySHA256(v artefactIntegrityInput) (string, error) {
	blob, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal integrity input: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

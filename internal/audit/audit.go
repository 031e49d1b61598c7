package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Report actions.
const (
	ActionReportGenerate = "report.generate"
	ActionReportReset    = "report.reset"
	ActionReportExport   = "report.export"
	ActionOrgUpdate      = "organization.update"
	ActionCounterAdjust  = "people_counter.adjust"
)

// Entry represents an audit log entry.
type Entry struct {
	ID            string          `json:"id"`
	Actor         string          `json:"actor"`
	ActorName     string          `json:"actorName"`
	Role          string          `json:"role"`
	Action        string          `json:"action"`
	ResourceType  string          `json:"resourceType"`
	ResourceID    string          `json:"resourceId"`
	EnvironmentID string          `json:"environmentId,omitempty"`
	Result        string          `json:"result"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	PayloadDigest string          `json:"payloadDigest,omitempty"`
	IP            string          `json:"ip,omitempty"`
	UserAgent     string          `json:"userAgent,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Filter narrows a history listing.
type Filter struct {
	Action       string
	ResourceType string
	Actor        string
	Limit        int
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// Reader lists audit entries, newest first.
type Reader interface {
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

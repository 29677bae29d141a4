package research

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/insight-tool/internal/redaction"
	"github.com/wolfman30/insight-tool/internal/transcript"
)

// ProjectStatus tracks how far a study has progressed.
type ProjectStatus string

const (
	ProjectStatusSetup         ProjectStatus = "setup"
	ProjectStatusGuideUploaded ProjectStatus = "guide_uploaded"
	ProjectStatusGuideLocked   ProjectStatus = "guide_locked"
	ProjectStatusCollecting    ProjectStatus = "collecting"
)

// SessionStatus tracks one transcript through the pipeline.
type SessionStatus string

const (
	SessionStatusUploaded   SessionStatus = "uploaded"
	SessionStatusScanned    SessionStatus = "scanned"
	SessionStatusAnonymised SessionStatus = "anonymised"
	SessionStatusOrganised  SessionStatus = "organised"
	SessionStatusThemed     SessionStatus = "themed"
	SessionStatusComplete   SessionStatus = "complete"
)

// Project is one interview study.
type Project struct {
	ID               string        `json:"project_id"`
	Name             string        `json:"name"`
	Status           ProjectStatus `json:"status"`
	SessionCount     int           `json:"session_count"`
	ParticipantCount int           `json:"participant_count"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Session is one uploaded interview transcript.
type Session struct {
	ID               string            `json:"session_id"`
	ProjectID        string            `json:"project_id"`
	ParticipantID    string            `json:"participant_id"`
	Transcript       []transcript.Turn `json:"transcript"`
	AnonymisationLog redaction.Log     `json:"anonymisation_log"`
	Status           SessionStatus     `json:"status"`
	UploadedAt       time.Time         `json:"upload_timestamp"`
}

// Clone returns a deep copy so callers cannot alias stored slices.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Transcript = append([]transcript.Turn{}, s.Transcript...)
	out.AnonymisationLog.Detections = append([]redaction.Detection{}, s.AnonymisationLog.Detections...)
	return &out
}

// CreateProjectRequest represents the request body for creating a project
type CreateProjectRequest struct {
	Name string `json:"name"`
}

// Validate validates the create project request
func (r *CreateProjectRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	return nil
}

// AnonymiseRequest carries reviewer-finalised detections.
type AnonymiseRequest struct {
	Detections []redaction.Detection `json:"detections"`
}

// NewID returns a short random identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// ParticipantID labels the nth session of a project: P01, P02, ...
func ParticipantID(n int) string {
	return fmt.Sprintf("P%02d", n)
}

package research

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/insight-tool/internal/compliance"
	"github.com/wolfman30/insight-tool/internal/observability/metrics"
	"github.com/wolfman30/insight-tool/internal/redaction"
	"github.com/wolfman30/insight-tool/internal/transcript"
	"github.com/wolfman30/insight-tool/pkg/logging"
)

var tracer = otel.Tracer("insight.internal.research")

// Stage names reported to metrics and traces.
const (
	stageSegment = "segment"
	stageScan    = "scan"
	stageApply   = "apply"
)

// processableStatuses are the states whose transcript still holds the
// uploaded text, so scan offsets are valid against it.
var processableStatuses = []SessionStatus{SessionStatusUploaded, SessionStatusScanned}

// Auditor records pipeline steps for compliance review.
type Auditor interface {
	Record(ctx context.Context, eventType compliance.AuditEventType, projectID, sessionID string, details compliance.AuditDetails) error
}

// Service orchestrates upload, PII scan and anonymisation of sessions.
type Service struct {
	repo    Repository
	scanner *redaction.Scanner
	metrics *metrics.PipelineMetrics
	auditor Auditor
	logger  *logging.Logger
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithAuditor records every upload, scan, anonymisation and project deletion.
func WithAuditor(a Auditor) ServiceOption {
	return func(s *Service) {
		s.auditor = a
	}
}

// NewService wires the pipeline. metrics may be nil.
func NewService(repo Repository, scanner *redaction.Scanner, m *metrics.PipelineMetrics, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("research: repository required")
	}
	if scanner == nil {
		panic("research: scanner required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{repo: repo, scanner: scanner, metrics: m, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// audit failures are logged; the step they describe has already been stored.
func (s *Service) audit(ctx context.Context, eventType compliance.AuditEventType, projectID, sessionID string, details compliance.AuditDetails) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, eventType, projectID, sessionID, details); err != nil {
		s.logger.Error("audit record failed",
			"event_type", eventType,
			"project_id", projectID,
			"session_id", sessionID,
			"error", err,
		)
	}
}

func (s *Service) CreateProject(ctx context.Context, req *CreateProjectRequest) (*Project, error) {
	return s.repo.CreateProject(ctx, req)
}

func (s *Service) GetProject(ctx context.Context, id string) (*Project, error) {
	return s.repo.GetProject(ctx, id)
}

func (s *Service) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.repo.ListProjects(ctx)
}

func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if err := s.repo.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, compliance.EventProjectDeleted, id, "", compliance.AuditDetails{})
	return nil
}

// ListSessions returns the sessions of an existing project.
func (s *Service) ListSessions(ctx context.Context, projectID string) ([]*Session, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListSessions(ctx, projectID)
}

// GetSession returns a session only if it belongs to projectID.
func (s *Service) GetSession(ctx context.Context, projectID, sessionID string) (*Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ProjectID != projectID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// UploadTranscript segments raw markdown into turns and stores a new session.
func (s *Service) UploadTranscript(ctx context.Context, projectID, raw string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "research.upload_transcript")
	defer span.End()
	span.SetAttributes(attribute.String("insight.project_id", projectID))

	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	start := time.Now()
	turns := transcript.Segment(raw)
	if len(turns) == 0 {
		s.metrics.ObserveStage(stageSegment, ErrEmptyTranscript, time.Since(start).Seconds())
		span.SetStatus(codes.Error, ErrEmptyTranscript.Error())
		return nil, ErrEmptyTranscript
	}
	s.metrics.ObserveStage(stageSegment, nil, time.Since(start).Seconds())
	for _, t := range turns {
		s.metrics.ObserveTurn(t.IsInterviewer)
	}
	span.SetAttributes(attribute.Int("insight.turns", len(turns)))

	session, err := s.repo.CreateSession(ctx, projectID, turns)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session failed")
		return nil, err
	}
	s.audit(ctx, compliance.EventTranscriptUploaded, projectID, session.ID, compliance.AuditDetails{Turns: len(turns)})
	s.logger.Info("transcript uploaded",
		"project_id", projectID,
		"session_id", session.ID,
		"participant_id", session.ParticipantID,
		"turns", len(turns),
	)
	return session, nil
}

// ScanPII proposes detections for a session and stores them on its log.
// Scanning is allowed until the session has been anonymised; a later scan
// replaces the previous proposal.
func (s *Service) ScanPII(ctx context.Context, projectID, sessionID string, names redaction.Names) (*Session, error) {
	ctx, span := tracer.Start(ctx, "research.scan_pii")
	defer span.End()
	span.SetAttributes(
		attribute.String("insight.project_id", projectID),
		attribute.String("insight.session_id", sessionID),
	)

	session, err := s.GetSession(ctx, projectID, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !slices.Contains(processableStatuses, session.Status) {
		span.SetStatus(codes.Error, ErrInvalidStatus.Error())
		return nil, fmt.Errorf("%w: cannot scan a %s session", ErrInvalidStatus, session.Status)
	}

	start := time.Now()
	detections, err := s.scanner.Scan(ctx, session.Transcript, names)
	s.metrics.ObserveStage(stageScan, err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pii scan failed")
		s.logger.Error("pii scan failed", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("research: scan session %s: %w", sessionID, err)
	}

	session.AnonymisationLog = redaction.Log{Detections: detections}
	session.Status = SessionStatusScanned
	if err := s.repo.UpdateSession(ctx, session, processableStatuses...); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("insight.detections", len(detections)))
	tally := redaction.Tally(detections)
	s.audit(ctx, compliance.EventPIIScanned, projectID, sessionID, compliance.AuditDetails{
		Turns:        len(session.Transcript),
		Detections:   len(detections),
		AutoRedacted: tally.AutoRedacted,
		Pending:      tally.Pending,
	})
	s.logger.Info("pii scan complete", "session_id", sessionID, "detections", len(detections))
	return session, nil
}

// Anonymise applies the reviewer's final detections to the transcript.
// The offsets refer to the unredacted text, so a session can only be
// anonymised once.
func (s *Service) Anonymise(ctx context.Context, projectID, sessionID string, detections []redaction.Detection) (*Session, error) {
	ctx, span := tracer.Start(ctx, "research.anonymise")
	defer span.End()
	span.SetAttributes(
		attribute.String("insight.project_id", projectID),
		attribute.String("insight.session_id", sessionID),
		attribute.Int("insight.detections", len(detections)),
	)

	session, err := s.GetSession(ctx, projectID, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !slices.Contains(processableStatuses, session.Status) {
		span.SetStatus(codes.Error, ErrInvalidStatus.Error())
		return nil, fmt.Errorf("%w: cannot anonymise a %s session", ErrInvalidStatus, session.Status)
	}

	start := time.Now()
	turns, log, err := redaction.Apply(session.Transcript, detections)
	s.metrics.ObserveStage(stageApply, err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply redactions failed")
		return nil, err
	}
	for _, d := range log.Detections {
		s.metrics.ObserveDetection(d.PIIType, string(d.Status.Normalize()))
	}
	s.metrics.ObserveRedacted(log.AutoRedacted)

	session.Transcript = turns
	session.AnonymisationLog = log
	session.Status = SessionStatusAnonymised
	if err := s.repo.UpdateSession(ctx, session, processableStatuses...); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.audit(ctx, compliance.EventSessionAnonymised, projectID, sessionID, compliance.AuditDetails{
		Turns:              len(turns),
		Detections:         len(log.Detections),
		AutoRedacted:       log.AutoRedacted,
		ResearcherReviewed: log.ResearcherReviewed,
		Exclusions:         log.Exclusions,
		Pending:            log.Pending,
	})
	s.logger.Info("session anonymised",
		"session_id", sessionID,
		"auto_redacted", log.AutoRedacted,
		"researcher_reviewed", log.ResearcherReviewed,
		"exclusions", log.Exclusions,
		"pending", log.Pending,
	)
	return session, nil
}

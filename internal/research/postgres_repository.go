package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/insight-tool/internal/redaction"
	"github.com/wolfman30/insight-tool/internal/transcript"
)

// pgxDB is the subset of pgxpool.Pool used by PostgresRepository.
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository stores projects and sessions in the relational
// database. Transcripts and anonymisation logs are JSONB columns.
type PostgresRepository struct {
	db pgxDB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(db pgxDB) *PostgresRepository {
	if db == nil {
		panic("research: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const projectColumns = `id, name, status, session_count, participant_count, created_at`

const sessionColumns = `id, project_id, participant_id, transcript, anonymisation_log, status, uploaded_at`

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	if err := row.Scan(&p.ID, &p.Name, &p.Status, &p.SessionCount, &p.ParticipantCount, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		s             Session
		transcriptRaw []byte
		logRaw        []byte
	)
	if err := row.Scan(&s.ID, &s.ProjectID, &s.ParticipantID, &transcriptRaw, &logRaw, &s.Status, &s.UploadedAt); err != nil {
		return nil, err
	}
	if len(transcriptRaw) > 0 {
		if err := json.Unmarshal(transcriptRaw, &s.Transcript); err != nil {
			return nil, fmt.Errorf("research: decode transcript: %w", err)
		}
	}
	if len(logRaw) > 0 {
		if err := json.Unmarshal(logRaw, &s.AnonymisationLog); err != nil {
			return nil, fmt.Errorf("research: decode anonymisation log: %w", err)
		}
	}
	if s.Transcript == nil {
		s.Transcript = []transcript.Turn{}
	}
	return &s, nil
}

// CreateProject inserts a new row.
func (r *PostgresRepository) CreateProject(ctx context.Context, req *CreateProjectRequest) (*Project, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	project := &Project{
		ID:     NewID(),
		Name:   strings.TrimSpace(req.Name),
		Status: ProjectStatusSetup,
	}
	query := `
		INSERT INTO projects (id, name, status)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	if err := r.db.QueryRow(ctx, query, project.ID, project.Name, project.Status).Scan(&project.CreatedAt); err != nil {
		return nil, fmt.Errorf("research: insert project failed: %w", err)
	}
	return project, nil
}

// GetProject fetches a project by id.
func (r *PostgresRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	project, err := scanProject(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("research: select project failed: %w", err)
	}
	return project, nil
}

// ListProjects returns all projects, newest first.
func (r *PostgresRepository) ListProjects(ctx context.Context) ([]*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("research: list projects failed: %w", err)
	}
	defer rows.Close()

	out := make([]*Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("research: scan project failed: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("research: list projects failed: %w", err)
	}
	return out, nil
}

// DeleteProject removes a project; sessions go with it via ON DELETE CASCADE.
func (r *PostgresRepository) DeleteProject(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("research: delete project failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// CreateSession bumps the project's counters and inserts the session in one
// transaction so participant IDs stay sequential under concurrent uploads.
func (r *PostgresRepository) CreateSession(ctx context.Context, projectID string, turns []transcript.Turn) (*Session, error) {
	if turns == nil {
		turns = []transcript.Turn{}
	}
	transcriptJSON, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("research: encode transcript: %w", err)
	}
	logJSON, err := json.Marshal(redaction.Log{Detections: []redaction.Detection{}})
	if err != nil {
		return nil, fmt.Errorf("research: encode anonymisation log: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("research: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var n int
	err = tx.QueryRow(ctx, `
		UPDATE projects
		SET session_count = session_count + 1,
		    participant_count = session_count + 1,
		    status = $2
		WHERE id = $1
		RETURNING session_count
	`, projectID, ProjectStatusCollecting).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("research: bump session count: %w", err)
	}

	session := &Session{
		ID:               NewID(),
		ProjectID:        projectID,
		ParticipantID:    ParticipantID(n),
		Transcript:       turns,
		AnonymisationLog: redaction.Log{Detections: []redaction.Detection{}},
		Status:           SessionStatusUploaded,
	}
	var uploadedAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO sessions (id, project_id, participant_id, transcript, anonymisation_log, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING uploaded_at
	`, session.ID, session.ProjectID, session.ParticipantID, transcriptJSON, logJSON, session.Status).Scan(&uploadedAt)
	if err != nil {
		return nil, fmt.Errorf("research: insert session failed: %w", err)
	}
	session.UploadedAt = uploadedAt

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("research: commit session: %w", err)
	}
	return session, nil
}

// GetSession fetches a session by id.
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	session, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("research: select session failed: %w", err)
	}
	return session, nil
}

// ListSessions returns a project's sessions in upload order.
func (r *PostgresRepository) ListSessions(ctx context.Context, projectID string) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE project_id = $1 ORDER BY uploaded_at ASC, participant_id ASC`
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("research: list sessions failed: %w", err)
	}
	defer rows.Close()

	out := make([]*Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("research: scan session failed: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("research: list sessions failed: %w", err)
	}
	return out, nil
}

// UpdateSession writes back the mutable parts of a session. A non-empty from
// guards the write on the stored status.
func (r *PostgresRepository) UpdateSession(ctx context.Context, session *Session, from ...SessionStatus) error {
	transcriptJSON, err := json.Marshal(session.Transcript)
	if err != nil {
		return fmt.Errorf("research: encode transcript: %w", err)
	}
	logJSON, err := json.Marshal(session.AnonymisationLog)
	if err != nil {
		return fmt.Errorf("research: encode anonymisation log: %w", err)
	}

	query := `
		UPDATE sessions
		SET transcript = $2, anonymisation_log = $3, status = $4
		WHERE id = $1
	`
	args := []any{session.ID, transcriptJSON, logJSON, session.Status}
	if len(from) > 0 {
		allowed := make([]string, len(from))
		for i, status := range from {
			allowed[i] = string(status)
		}
		query += ` AND status = ANY($5)`
		args = append(args, allowed)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("research: update session failed: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if len(from) == 0 {
		return ErrSessionNotFound
	}

	var current string
	err = r.db.QueryRow(ctx, `SELECT status FROM sessions WHERE id = $1`, session.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("research: read session status failed: %w", err)
	}
	return fmt.Errorf("%w: session is %s", ErrInvalidStatus, current)
}

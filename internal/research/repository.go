package research

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/insight-tool/internal/transcript"
)

// Repository defines the interface for project and session storage
type Repository interface {
	CreateProject(ctx context.Context, req *CreateProjectRequest) (*Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	DeleteProject(ctx context.Context, id string) error

	CreateSession(ctx context.Context, projectID string, turns []transcript.Turn) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, projectID string) ([]*Session, error)
	// UpdateSession stores session. When from is non-empty the write only
	// happens if the stored status is one of from; otherwise it returns
	// ErrInvalidStatus.
	UpdateSession(ctx context.Context, session *Session, from ...SessionStatus) error
}

// InMemoryRepository keeps projects and sessions in process memory. It is
// used for local development and tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	projects map[string]*Project
	sessions map[string]*Session
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		projects: make(map[string]*Project),
		sessions: make(map[string]*Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateProject creates a new project in memory
func (r *InMemoryRepository) CreateProject(ctx context.Context, req *CreateProjectRequest) (*Project, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	project := &Project{
		ID:        NewID(),
		Name:      strings.TrimSpace(req.Name),
		Status:    ProjectStatusSetup,
		CreatedAt: r.now(),
	}

	r.mu.Lock()
	r.projects[project.ID] = project
	r.mu.Unlock()

	cp := *project
	return &cp, nil
}

// GetProject retrieves a project by ID
func (r *InMemoryRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	project, ok := r.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	cp := *project
	return &cp, nil
}

// ListProjects returns all projects, newest first
func (r *InMemoryRepository) ListProjects(ctx context.Context) ([]*Project, error) {
	r.mu.RLock()
	out := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		cp := *p
		out = append(out, &cp)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DeleteProject removes a project and all of its sessions
func (r *InMemoryRepository) DeleteProject(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[id]; !ok {
		return ErrProjectNotFound
	}
	delete(r.projects, id)
	for sid, s := range r.sessions {
		if s.ProjectID == id {
			delete(r.sessions, sid)
		}
	}
	return nil
}

// CreateSession stores a new session for the project and assigns the next
// participant ID
func (r *InMemoryRepository) CreateSession(ctx context.Context, projectID string, turns []transcript.Turn) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	project, ok := r.projects[projectID]
	if !ok {
		return nil, ErrProjectNotFound
	}
	n := 1
	for _, s := range r.sessions {
		if s.ProjectID == projectID {
			n++
		}
	}

	session := &Session{
		ID:            NewID(),
		ProjectID:     projectID,
		ParticipantID: ParticipantID(n),
		Transcript:    append([]transcript.Turn(nil), turns...),
		Status:        SessionStatusUploaded,
		UploadedAt:    r.now(),
	}
	r.sessions[session.ID] = session

	project.SessionCount = n
	project.ParticipantCount = n
	project.Status = ProjectStatusCollecting

	return session.Clone(), nil
}

// GetSession retrieves a session by ID
func (r *InMemoryRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// ListSessions returns a project's sessions in upload order
func (r *InMemoryRepository) ListSessions(ctx context.Context, projectID string) ([]*Session, error) {
	r.mu.RLock()
	out := make([]*Session, 0)
	for _, s := range r.sessions {
		if s.ProjectID == projectID {
			out = append(out, s.Clone())
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ParticipantID < out[j].ParticipantID
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out, nil
}

// UpdateSession replaces a stored session
func (r *InMemoryRepository) UpdateSession(ctx context.Context, session *Session, from ...SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[session.ID]
	if !ok {
		return ErrSessionNotFound
	}
	if len(from) > 0 && !slices.Contains(from, current.Status) {
		return fmt.Errorf("%w: session is %s", ErrInvalidStatus, current.Status)
	}
	r.sessions[session.ID] = session.Clone()
	return nil
}

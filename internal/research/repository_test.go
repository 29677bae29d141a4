package research

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/insight-tool/internal/redaction"
	"github.com/wolfman30/insight-tool/internal/transcript"
)

func sampleTurns() []transcript.Turn {
	return []transcript.Turn{
		{TurnIndex: 0, Speaker: "Interviewer", Text: "Tell me about your week.", IsInterviewer: true},
		{TurnIndex: 1, Speaker: "Jane", Text: "Email me at jane@example.com please."},
	}
}

func TestInMemoryRepository_CreateProject(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	p, err := repo.CreateProject(ctx, &CreateProjectRequest{Name: "  Onboarding study "})
	require.NoError(t, err)
	assert.Equal(t, "Onboarding study", p.Name)
	assert.Equal(t, ProjectStatusSetup, p.Status)
	assert.Len(t, p.ID, 12)
	assert.False(t, p.CreatedAt.IsZero())

	_, err = repo.CreateProject(ctx, &CreateProjectRequest{Name: "   "})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestInMemoryRepository_ListProjectsNewestFirst(t *testing.T) {
	repo := NewInMemoryRepository()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	ctx := context.Background()

	first, err := repo.CreateProject(ctx, &CreateProjectRequest{Name: "first"})
	require.NoError(t, err)
	second, err := repo.CreateProject(ctx, &CreateProjectRequest{Name: "second"})
	require.NoError(t, err)

	projects, err := repo.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, second.ID, projects[0].ID)
	assert.Equal(t, first.ID, projects[1].ID)
}

func TestInMemoryRepository_GetProjectReturnsCopy(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	p, err := repo.CreateProject(ctx, &CreateProjectRequest{Name: "study"})
	require.NoError(t, err)

	got, err := repo.GetProject(ctx, p.ID)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := repo.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "study", again.Name)

	_, err = repo.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestInMemoryRepository_CreateSessionAssignsParticipantIDs(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	p, err := repo.CreateProject(ctx, &CreateProjectRequest{Name: "study"})
	require.NoError(t, err)

	s1, err := repo.CreateSession(ctx, p.ID, sampleTurns())
	require.NoError(t, err)
	s2, err := repo.CreateSession(ctx, p.ID, sampleTurns())
	require.NoError(t, err)

	assert.Equal(t, "P01", s1.ParticipantID)
	assert.Equal(t, "P02", s2.ParticipantID)
	assert.Equal(t, SessionStatusUploaded, s1.Status)
	assert.NotNil(t, s1.AnonymisationLog.Detections)

	project, err := repo.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, project.SessionCount)
	assert.Equal(t, 2, project.ParticipantCount)
	assert.Equal(t, ProjectStatusCollecting, project.Status)

	_, err = repo.CreateSession(ctx, "missing", sampleTurns())
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestInMemoryRepository_SessionsAreIsolatedCopies(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	p, err := repo.CreateProject(ctx, &CreateProjectRequest{Name: "study"})
	require.NoError(t, err)

	turns := sampleTurns()
	s, err := repo.CreateSession(ctx, p.ID, turns)
	require.NoError(t, err)

	turns[1].Text = "changed by caller"
	s.Transcript[0].Text = "changed via result"

	stored, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tell me about your week.", stored.Transcript[0].Text)
	assert.Equal(t, "Email me at jane@example.com please.", stored.Transcript[1].Text)
}

func TestInMemoryRepository_UpdateSession(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	p, err := repo.CreateProject(ctx, &CreateProjectRequest{Name: "study"})
	require.NoError(t, err)
	s, err := repo.CreateSession(ctx, p.ID, sampleTurns())
	require.NoError(t, err)

	s.Status = SessionStatusScanned
	s.AnonymisationLog = redaction.Log{Detections: []redaction.Detection{{PIIType: "EMAIL_ADDRESS", TurnIndex: 1}}}
	require.NoError(t, repo.UpdateSession(ctx, s))

	stored, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusScanned, stored.Status)
	assert.Len(t, stored.AnonymisationLog.Detections, 1)

	err = repo.UpdateSession(ctx, &Session{ID: "missing"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInMemoryRepository_UpdateSessionGuardsStatus(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	p, err := repo.CreateProject(ctx, &CreateProjectRequest{Name: "study"})
	require.NoError(t, err)
	s, err := repo.CreateSession(ctx, p.ID, sampleTurns())
	require.NoError(t, err)

	redacted := s.Clone()
	redacted.Transcript[1].Text = "Email me at [EMAIL] please."
	redacted.Status = SessionStatusAnonymised
	require.NoError(t, repo.UpdateSession(ctx, redacted, SessionStatusUploaded, SessionStatusScanned))

	stale := s.Clone()
	stale.Status = SessionStatusScanned
	err = repo.UpdateSession(ctx, stale, SessionStatusUploaded, SessionStatusScanned)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	stored, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusAnonymised, stored.Status)
	assert.Equal(t, "Email me at [EMAIL] please.", stored.Transcript[1].Text)

	err = repo.UpdateSession(ctx, &Session{ID: "missing"}, SessionStatusUploaded)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInMemoryRepository_ListSessionsUploadOrder(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	p, err := repo.CreateProject(ctx, &CreateProjectRequest{Name: "study"})
	require.NoError(t, err)
	other, err := repo.CreateProject(ctx, &CreateProjectRequest{Name: "other"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := repo.CreateSession(ctx, p.ID, sampleTurns())
		require.NoError(t, err)
	}
	_, err = repo.CreateSession(ctx, other.ID, sampleTurns())
	require.NoError(t, err)

	sessions, err := repo.ListSessions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	for i, s := range sessions {
		assert.Equal(t, ParticipantID(i+1), s.ParticipantID)
	}
}

func TestInMemoryRepository_DeleteProjectCascades(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	p, err := repo.CreateProject(ctx, &CreateProjectRequest{Name: "study"})
	require.NoError(t, err)
	s, err := repo.CreateSession(ctx, p.ID, sampleTurns())
	require.NoError(t, err)

	require.NoError(t, repo.DeleteProject(ctx, p.ID))

	_, err = repo.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, ErrProjectNotFound)
	_, err = repo.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, repo.DeleteProject(ctx, p.ID), ErrProjectNotFound)
}

func TestInMemoryRepository_ConcurrentUploadsGetDistinctParticipants(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	p, err := repo.CreateProject(ctx, &CreateProjectRequest{Name: "study"})
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := repo.CreateSession(ctx, p.ID, sampleTurns())
			if err == nil {
				ids[i] = s.ParticipantID
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, id := range ids {
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate participant id %s", id)
		seen[id] = true
	}
	assert.True(t, seen[fmt.Sprintf("P%02d", n)])
}

func TestParticipantID(t *testing.T) {
	assert.Equal(t, "P01", ParticipantID(1))
	assert.Equal(t, "P12", ParticipantID(12))
	assert.Equal(t, "P100", ParticipantID(100))
}

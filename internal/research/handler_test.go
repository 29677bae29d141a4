package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/insight-tool/internal/pii"
	"github.com/wolfman30/insight-tool/internal/redaction"
	"github.com/wolfman30/insight-tool/pkg/logging"
)

func newTestServer(t *testing.T, maxUpload int64) (*httptest.Server, *Service) {
	t.Helper()
	logger := logging.NewWithWriter("error", &bytes.Buffer{})
	svc := NewService(NewInMemoryRepository(), redaction.NewScanner(pii.NewPatternDetector()), nil, logger)
	srv := httptest.NewServer(NewHandler(svc, logger, maxUpload).Routes())
	t.Cleanup(srv.Close)
	return srv, svc
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHandler_ProjectLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	resp := doJSON(t, http.MethodPost, srv.URL+"/", CreateProjectRequest{Name: "Checkout study"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	project := decode[Project](t, resp)
	assert.Equal(t, "Checkout study", project.Name)

	resp = doJSON(t, http.MethodGet, srv.URL+"/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[ListProjectsResponse](t, resp)
	assert.Equal(t, 1, list.Count)

	resp = doJSON(t, http.MethodGet, srv.URL+"/"+project.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/"+project.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/"+project.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_CreateProjectValidation(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	resp := doJSON(t, http.MethodPost, srv.URL+"/", CreateProjectRequest{Name: " "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/", strings.NewReader("{not json"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestHandler_UploadScanAnonymise(t *testing.T) {
	srv, svc := newTestServer(t, 0)
	project, err := svc.CreateProject(context.Background(), &CreateProjectRequest{Name: "study"})
	require.NoError(t, err)
	base := srv.URL + "/" + project.ID + "/sessions"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "session1.md")
	require.NoError(t, err)
	_, err = fw.Write([]byte(interviewMarkdown))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, base+"/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	session := decode[Session](t, resp)
	assert.Equal(t, "P01", session.ParticipantID)
	require.Len(t, session.Transcript, 2)

	resp = doJSON(t, http.MethodPost, base+"/"+session.ID+"/scan-pii", redaction.Names{Participant: "Jane"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	scanned := decode[Session](t, resp)
	require.Len(t, scanned.AnonymisationLog.Detections, 1)

	resp = doJSON(t, http.MethodPost, base+"/"+session.ID+"/anonymise",
		AnonymiseRequest{Detections: scanned.AnonymisationLog.Detections})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	done := decode[Session](t, resp)
	assert.Equal(t, SessionStatusAnonymised, done.Status)
	assert.Contains(t, done.Transcript[1].Text, "[EMAIL]")
	assert.NotContains(t, done.Transcript[1].Text, "jane@example.com")

	resp = doJSON(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessions := decode[ListSessionsResponse](t, resp)
	assert.Equal(t, 1, sessions.Count)

	resp = doJSON(t, http.MethodGet, base+"/"+session.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[Session](t, resp)
	assert.Equal(t, done.Transcript, got.Transcript)

	resp = doJSON(t, http.MethodPost, base+"/"+session.ID+"/anonymise",
		AnonymiseRequest{Detections: scanned.AnonymisationLog.Detections})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_UploadRawBodyAndScanWithoutBody(t *testing.T) {
	srv, svc := newTestServer(t, 0)
	project, err := svc.CreateProject(context.Background(), &CreateProjectRequest{Name: "study"})
	require.NoError(t, err)
	base := srv.URL + "/" + project.ID + "/sessions"

	resp, err := http.Post(base+"/upload", "text/markdown", strings.NewReader(interviewMarkdown))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	session := decode[Session](t, resp)

	scan, err := http.Post(base+"/"+session.ID+"/scan-pii", "application/json", nil)
	require.NoError(t, err)
	defer scan.Body.Close()
	assert.Equal(t, http.StatusOK, scan.StatusCode)
}

func TestHandler_UploadErrors(t *testing.T) {
	srv, svc := newTestServer(t, 64)
	project, err := svc.CreateProject(context.Background(), &CreateProjectRequest{Name: "study"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		url    string
		body   string
		status int
	}{
		{"no turns", srv.URL + "/" + project.ID + "/sessions/upload", "just some notes", http.StatusBadRequest},
		{"not utf8", srv.URL + "/" + project.ID + "/sessions/upload", "A: \xff\xfe", http.StatusBadRequest},
		{"too large", srv.URL + "/" + project.ID + "/sessions/upload", "A: " + strings.Repeat("x", 100), http.StatusRequestEntityTooLarge},
		{"unknown project", srv.URL + "/missing/sessions/upload", "A: hi", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(tc.url, "text/plain", strings.NewReader(tc.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestHandler_AnonymiseContractViolation(t *testing.T) {
	srv, svc := newTestServer(t, 0)
	ctx := context.Background()
	project, err := svc.CreateProject(ctx, &CreateProjectRequest{Name: "study"})
	require.NoError(t, err)
	session, err := svc.UploadTranscript(ctx, project.ID, interviewMarkdown)
	require.NoError(t, err)

	overlapping := []redaction.Detection{
		{ReplacementToken: "[A]", StartOffset: 0, EndOffset: 8, TurnIndex: 1, Status: redaction.StatusRedacted},
		{ReplacementToken: "[B]", StartOffset: 4, EndOffset: 12, TurnIndex: 1, Status: redaction.StatusRedacted},
	}
	url := fmt.Sprintf("%s/%s/sessions/%s/anonymise", srv.URL, project.ID, session.ID)
	resp := doJSON(t, http.MethodPost, url, AnonymiseRequest{Detections: overlapping})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	assert.Contains(t, body["error"], "overlap")
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrProjectNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", ErrSessionNotFound), http.StatusNotFound},
		{ErrInvalidName, http.StatusBadRequest},
		{ErrEmptyTranscript, http.StatusBadRequest},
		{fmt.Errorf("%w: nope", ErrInvalidStatus), http.StatusBadRequest},
		{fmt.Errorf("turn 1: %w", redaction.ErrOverlappingSpans), http.StatusUnprocessableEntity},
		{redaction.ErrUnknownTurn, http.StatusUnprocessableEntity},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

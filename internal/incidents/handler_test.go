package incidents

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/examdesk/incidentd/internal/domain"
	"github.com/examdesk/incidentd/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

type testServer struct {
	t      *testing.T
	router http.Handler
	store  *memStore
	userID int64
	role   domain.Role
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc, store := newTestService(t)
	ts := &testServer{t: t, store: store, userID: 7, role: domain.RoleAdmin}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := httputil.WithUser(req.Context(), ts.userID, ts.role)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewHandler(svc).RegisterRoutes(r)
	ts.router = r
	return ts
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) domain.IncidentView {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success, rec.Body.String())
	var view domain.IncidentView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view
}

func TestHandler_CreateIncident(t *testing.T) {
	ts := newTestServer(t)
	ts.role = domain.RoleInvigilator

	rec := ts.do(http.MethodPost, "/incidents", map[string]any{
		"type":        "NETWORK",
		"title":       "Wifi down",
		"description": "Hall A offline",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decodeView(t, rec)
	assert.Equal(t, domain.SeverityMedium, view.Severity)
	assert.Equal(t, domain.IncidentStatusReported, view.Status)
	assert.Equal(t, int64(7), view.ReportedByID)
	assert.Nil(t, view.ResolvedAt)
	assert.Equal(t, domain.PriorityMedium, view.Priority)
}

func TestHandler_CreateIncident_BadRequests(t *testing.T) {
	tests := []struct {
		name      string
		body      any
		wantError string
	}{
		{name: "malformed json", body: `{"type":`, wantError: "invalid json"},
		{name: "unknown type", body: map[string]any{"type": "FIRE", "title": "x", "description": "y"}, wantError: "validation error"},
		{name: "missing title", body: map[string]any{"type": "POWER", "description": "y"}, wantError: "validation error"},
		{name: "blank title", body: map[string]any{"type": "POWER", "title": "   ", "description": "y"}, wantError: "title is required"},
		{name: "non numeric exam", body: `{"type":"POWER","title":"x","description":"y","examId":"abc"}`, wantError: "invalid json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			rec := ts.do(http.MethodPost, "/incidents", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantError, env.Error)
		})
	}
}

func TestHandler_CreateIncident_UnknownExam(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/incidents", map[string]any{
		"type":        "LOGISTICS",
		"title":       "Papers late",
		"description": "Courier delayed",
		"examId":      999,
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "exam not found", decodeEnvelope(t, rec).Error)
}

func TestHandler_GetIncident(t *testing.T) {
	ts := newTestServer(t)
	id := ts.store.seed(domain.Incident{Status: domain.IncidentStatusReported, Severity: domain.SeverityHigh, ReportedByID: 7})

	t.Run("found", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/incidents/1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		view := decodeView(t, rec)
		assert.Equal(t, id, view.ID)
		assert.Equal(t, domain.PriorityHigh, view.Priority)
		assert.NotNil(t, view.DaysOpen)
	})

	t.Run("not found", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/incidents/99", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "incident not found", decodeEnvelope(t, rec).Error)
	})

	t.Run("non numeric id", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/incidents/abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_AssignAndResolve(t *testing.T) {
	ts := newTestServer(t)
	ts.role = domain.RoleExamOfficer
	ts.store.seed(domain.Incident{ID: 12, Status: domain.IncidentStatusReported, ReportedByID: 7})

	rec := ts.do(http.MethodPatch, "/incidents/12/assign", map[string]any{"assignedToId": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeView(t, rec)
	assert.Equal(t, domain.IncidentStatusUnderInvestigation, view.Status)
	require.NotNil(t, view.AssignedToID)
	assert.Equal(t, int64(3), *view.AssignedToID)

	rec = ts.do(http.MethodPatch, "/incidents/12/resolve", map[string]any{"resolution": "Router replaced"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = decodeView(t, rec)
	assert.Equal(t, domain.IncidentStatusResolved, view.Status)
	assert.Equal(t, "Router replaced", *view.Resolution)
	assert.NotNil(t, view.ResolvedAt)
	assert.Nil(t, view.DaysOpen)

	rec = ts.do(http.MethodPut, "/incidents/12", map[string]any{"status": "REPORTED"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, decodeView(t, rec).ResolvedAt)
}

func TestHandler_Assign_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.store.seed(domain.Incident{ID: 12, Status: domain.IncidentStatusReported, ReportedByID: 7})

	rec := ts.do(http.MethodPatch, "/incidents/12/assign", map[string]any{"assignedToId": 404})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "user not found", decodeEnvelope(t, rec).Error)

	rec = ts.do(http.MethodPatch, "/incidents/12/assign", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPatch, "/incidents/12/resolve", map[string]any{"resolution": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Update_InvalidStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.store.seed(domain.Incident{ID: 1, Status: domain.IncidentStatusReported, ReportedByID: 7})

	rec := ts.do(http.MethodPut, "/incidents/1", map[string]any{"status": "OPEN"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	var details []httputil.FieldError
	require.NoError(t, json.Unmarshal(env.Details, &details))
	require.Len(t, details, 1)
	assert.Equal(t, "Status", details[0].Field)
	assert.Equal(t, "oneof", details[0].Message)
}

func TestHandler_Delete(t *testing.T) {
	ts := newTestServer(t)
	ts.store.seed(domain.Incident{ID: 12, Status: domain.IncidentStatusReported, ReportedByID: 7})
	ts.store.seed(domain.Incident{ID: 13, Status: domain.IncidentStatusClosed, ReportedByID: 7})

	rec := ts.do(http.MethodDelete, "/incidents/12", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ErrIncidentNotResolved.Error(), decodeEnvelope(t, rec).Error)

	rec = ts.do(http.MethodDelete, "/incidents/13", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "incident deleted", decodeEnvelope(t, rec).Message)

	rec = ts.do(http.MethodDelete, "/incidents/13", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_RoleGating(t *testing.T) {
	tests := []struct {
		name   string
		role   domain.Role
		method string
		path   string
		body   any
		want   int
	}{
		{name: "invigilator cannot view stats", role: domain.RoleInvigilator, method: http.MethodGet, path: "/incidents/stats/overview", want: http.StatusForbidden},
		{name: "invigilator cannot assign", role: domain.RoleInvigilator, method: http.MethodPatch, path: "/incidents/1/assign", body: map[string]any{"assignedToId": 3}, want: http.StatusForbidden},
		{name: "exam officer cannot delete", role: domain.RoleExamOfficer, method: http.MethodDelete, path: "/incidents/1", want: http.StatusForbidden},
		{name: "exam officer views stats", role: domain.RoleExamOfficer, method: http.MethodGet, path: "/incidents/stats/overview", want: http.StatusOK},
		{name: "invigilator lists", role: domain.RoleInvigilator, method: http.MethodGet, path: "/incidents", want: http.StatusOK},
		{name: "unknown role", role: domain.Role("student"), method: http.MethodGet, path: "/incidents", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.role = tt.role
			ts.store.seed(domain.Incident{ID: 1, Status: domain.IncidentStatusClosed, ReportedByID: 7})

			rec := ts.do(tt.method, tt.path, tt.body)

			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_ListIncidents(t *testing.T) {
	ts := newTestServer(t)
	seedSearchFixture(ts.store)

	rec := ts.do(http.MethodGet, "/incidents?search=network&page=2&limit=5", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.Incidents, 5)
	assert.Equal(t, Pagination{Page: 2, Limit: 5, Total: 13, TotalPages: 3}, result.Pagination)
}

func TestHandler_ListIncidents_BadQuery(t *testing.T) {
	tests := []string{
		"/incidents?page=abc",
		"/incidents?limit=-1",
		"/incidents?examId=x",
		"/incidents?startDate=yesterday",
		"/incidents?startDate=2026-06-10&endDate=2026-06-01",
		"/incidents?status=OPEN",
		"/incidents?sortBy=password",
		"/incidents/exam/abc",
	}

	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			ts := newTestServer(t)

			rec := ts.do(http.MethodGet, path, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_ListScopedRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.store.seed(domain.Incident{Status: domain.IncidentStatusReported, ReportedByID: 7, ExamID: ptr(int64(100)), ScriptID: ptr(int64(500))})
	ts.store.seed(domain.Incident{Status: domain.IncidentStatusReported, ReportedByID: 9, ExamID: ptr(int64(200)), AssignedToID: ptr(int64(3))})
	ts.store.seed(domain.Incident{Status: domain.IncidentStatusResolved, ReportedByID: 9, AssignedToID: ptr(int64(3))})

	tests := []struct {
		path string
		want int
	}{
		{path: "/incidents/exam/100", want: 1},
		// the path parameter wins over a conflicting query parameter
		{path: "/incidents/exam/100?examId=200", want: 1},
		{path: "/incidents/script/500", want: 1},
		{path: "/incidents/reporter/9", want: 2},
		{path: "/incidents/assignee/3", want: 2},
		{path: "/incidents/assignee/3?status=RESOLVED", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := ts.do(http.MethodGet, tt.path, nil)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var result ListResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			assert.Equal(t, tt.want, result.Pagination.Total)
		})
	}
}

func TestHandler_Stats(t *testing.T) {
	ts := newTestServer(t)
	ts.store.seed(domain.Incident{Type: domain.IncidentTypeOther, Severity: domain.SeverityLow, Status: domain.IncidentStatusReported, ReportedByID: 7})
	ts.store.seed(domain.Incident{Type: domain.IncidentTypeOther, Severity: domain.SeverityLow, Status: domain.IncidentStatusClosed, ReportedByID: 7})

	rec := ts.do(http.MethodGet, "/incidents/stats/overview", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, 1, stats.Closed)
}

func TestHandler_UnexpectedErrorIsHidden(t *testing.T) {
	ts := newTestServer(t)
	ts.store.countErr = errStoreDown

	rec := ts.do(http.MethodGet, "/incidents", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "internal error", env.Error)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestParseQuery_Dates(t *testing.T) {
	q, err := ParseQuery(map[string][]string{
		"startDate": {"2026-06-01"},
		"endDate":   {"2026-06-02T15:04:05Z"},
	})

	require.NoError(t, err)
	require.NotNil(t, q.StartDate)
	require.NotNil(t, q.EndDate)
	assert.Equal(t, "2026-06-01T00:00:00Z", q.StartDate.Format("2006-01-02T15:04:05Z07:00"))
	assert.Equal(t, 15, q.EndDate.Hour())
}

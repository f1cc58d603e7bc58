package incidents

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/examdesk/incidentd/internal/domain"
	"github.com/examdesk/incidentd/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers the incident routes. The router must already
// authenticate requests; role checks are applied per route here.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httputil.RequireRole(domain.RoleInvigilator))
			r.Get("/", h.ListIncidents)
			r.Post("/", h.CreateIncident)
			r.Get("/exam/{examId}", h.ListByExam)
			r.Get("/script/{scriptId}", h.ListByScript)
			r.Get("/reporter/{userId}", h.ListByReporter)
			r.Get("/assignee/{userId}", h.ListByAssignee)
			r.Get("/{id}", h.GetIncident)
		})

		r.Group(func(r chi.Router) {
			r.Use(httputil.RequireRole(domain.RoleExamOfficer))
			r.Get("/stats/overview", h.GetStats)
			r.Put("/{id}", h.UpdateIncident)
			r.Patch("/{id}/assign", h.AssignIncident)
			r.Patch("/{id}/resolve", h.ResolveIncident)
		})

		r.Group(func(r chi.Router) {
			r.Use(httputil.RequireRole(domain.RoleAdmin))
			r.Delete("/{id}", h.DeleteIncident)
		})
	})
}

// CreateIncidentRequest represents the request body for reporting an incident.
type CreateIncidentRequest struct {
	Type        string `json:"type" validate:"required,oneof=TECHNICAL SECURITY NETWORK POWER SCRIPT_HANDLING MALPRACTICE LOGISTICS HEALTH OTHER"`
	Severity    string `json:"severity" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"required"`
	ExamID      *int64 `json:"examId" validate:"omitempty,gt=0"`
	ScriptID    *int64 `json:"scriptId" validate:"omitempty,gt=0"`
}

// ToInput converts the request to service input.
func (r *CreateIncidentRequest) ToInput() CreateInput {
	input := CreateInput{
		Type:        domain.IncidentType(r.Type),
		Title:       r.Title,
		Description: r.Description,
		ExamID:      r.ExamID,
		ScriptID:    r.ScriptID,
	}
	if r.Severity != "" {
		severity := domain.Severity(r.Severity)
		input.Severity = &severity
	}
	return input
}

// UpdateIncidentRequest represents the request body for a generic update.
// Omitted fields are left unchanged.
type UpdateIncidentRequest struct {
	Type         *string `json:"type" validate:"omitempty,oneof=TECHNICAL SECURITY NETWORK POWER SCRIPT_HANDLING MALPRACTICE LOGISTICS HEALTH OTHER"`
	Severity     *string `json:"severity" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Status       *string `json:"status" validate:"omitempty,oneof=REPORTED UNDER_INVESTIGATION RESOLVED CLOSED"`
	Title        *string `json:"title" validate:"omitempty,max=255"`
	Description  *string `json:"description"`
	ExamID       *int64  `json:"examId" validate:"omitempty,gt=0"`
	ScriptID     *int64  `json:"scriptId" validate:"omitempty,gt=0"`
	AssignedToID *int64  `json:"assignedToId" validate:"omitempty,gt=0"`
	Resolution   *string `json:"resolution"`
}

// ToInput converts the request to service input.
func (r *UpdateIncidentRequest) ToInput() UpdateInput {
	input := UpdateInput{
		Title:        r.Title,
		Description:  r.Description,
		ExamID:       r.ExamID,
		ScriptID:     r.ScriptID,
		AssignedToID: r.AssignedToID,
		Resolution:   r.Resolution,
	}
	if r.Type != nil {
		t := domain.IncidentType(*r.Type)
		input.Type = &t
	}
	if r.Severity != nil {
		s := domain.Severity(*r.Severity)
		input.Severity = &s
	}
	if r.Status != nil {
		s := domain.IncidentStatus(*r.Status)
		input.Status = &s
	}
	return input
}

// AssignIncidentRequest represents the request body for assigning an incident.
type AssignIncidentRequest struct {
	AssignedToID int64 `json:"assignedToId" validate:"required,gt=0"`
}

// ResolveIncidentRequest represents the request body for resolving an incident.
type ResolveIncidentRequest struct {
	Resolution string `json:"resolution" validate:"required"`
}

// CreateIncident handles POST /incidents request.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	userID := httputil.GetUserID(r.Context())
	if userID == 0 {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	incident, err := h.service.Create(r.Context(), req.ToInput(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.SuccessMessage(w, http.StatusCreated, "incident reported", incident)
}

// GetIncident handles GET /incidents/{id} request.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	incident, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// UpdateIncident handles PUT /incidents/{id} request.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.Update(r.Context(), id, req.ToInput())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.SuccessMessage(w, http.StatusOK, "incident updated", incident)
}

// AssignIncident handles PATCH /incidents/{id}/assign request.
func (h *Handler) AssignIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req AssignIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.Assign(r.Context(), id, req.AssignedToID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.SuccessMessage(w, http.StatusOK, "incident assigned", incident)
}

// ResolveIncident handles PATCH /incidents/{id}/resolve request.
func (h *Handler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req ResolveIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.Resolve(r.Context(), id, req.Resolution)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.SuccessMessage(w, http.StatusOK, "incident resolved", incident)
}

// DeleteIncident handles DELETE /incidents/{id} request.
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.SuccessMessage(w, http.StatusOK, "incident deleted", nil)
}

// ListIncidents handles GET /incidents request.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, nil)
}

// ListByExam handles GET /incidents/exam/{examId} request.
func (h *Handler) ListByExam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "examId")
	if !ok {
		return
	}
	h.list(w, r, func(q *Query) { q.ExamID = &id })
}

// ListByScript handles GET /incidents/script/{scriptId} request.
func (h *Handler) ListByScript(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "scriptId")
	if !ok {
		return
	}
	h.list(w, r, func(q *Query) { q.ScriptID = &id })
}

// ListByReporter handles GET /incidents/reporter/{userId} request.
func (h *Handler) ListByReporter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	h.list(w, r, func(q *Query) { q.ReportedByID = &id })
}

// ListByAssignee handles GET /incidents/assignee/{userId} request.
func (h *Handler) ListByAssignee(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	h.list(w, r, func(q *Query) { q.AssignedToID = &id })
}

// GetStats handles GET /incidents/stats/overview request.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	query, err := ParseQuery(r.URL.Query())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	stats, err := h.service.Stats(r.Context(), query)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}

// list serves every listing route. scope pins the path parameter over any
// query parameter of the same name.
func (h *Handler) list(w http.ResponseWriter, r *http.Request, scope func(*Query)) {
	values := r.URL.Query()

	query, err := ParseQuery(values)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if scope != nil {
		scope(&query)
	}

	page, err := ParsePageRequest(values)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	result, err := h.service.List(r.Context(), query, page)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// ParseQuery reads filter parameters from a URL query string.
func ParseQuery(values url.Values) (Query, error) {
	var q Query
	var err error

	if q.ExamID, err = optionalID(values, "examId"); err != nil {
		return q, err
	}
	if q.ScriptID, err = optionalID(values, "scriptId"); err != nil {
		return q, err
	}
	if q.ReportedByID, err = optionalID(values, "reportedById"); err != nil {
		return q, err
	}
	if q.AssignedToID, err = optionalID(values, "assignedToId"); err != nil {
		return q, err
	}
	if q.InstitutionID, err = optionalID(values, "institutionId"); err != nil {
		return q, err
	}

	if v := values.Get("type"); v != "" {
		t := domain.IncidentType(v)
		q.Type = &t
	}
	if v := values.Get("severity"); v != "" {
		s := domain.Severity(v)
		q.Severity = &s
	}
	if v := values.Get("status"); v != "" {
		s := domain.IncidentStatus(v)
		q.Status = &s
	}

	if q.StartDate, err = optionalDate(values, "startDate"); err != nil {
		return q, err
	}
	if q.EndDate, err = optionalDate(values, "endDate"); err != nil {
		return q, err
	}

	q.Search = values.Get("search")
	return q, nil
}

// ParsePageRequest reads page, limit, sortBy and sortOrder. Defaults are
// applied later by PageRequest.Normalize.
func ParsePageRequest(values url.Values) (PageRequest, error) {
	var p PageRequest

	if v := values.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, ErrInvalidPage
		}
		p.Page = n
	}
	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, ErrInvalidLimit
		}
		p.Limit = n
	}

	p.SortBy = values.Get("sortBy")
	p.SortOrder = SortOrder(values.Get("sortOrder"))
	return p, nil
}

func optionalID(values url.Values, name string) (*int64, error) {
	v := values.Get(name)
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("%s must be a positive integer", name)}
	}
	return &id, nil
}

// optionalDate accepts RFC 3339 timestamps or plain dates (midnight UTC).
func optionalDate(values url.Values, name string) (*time.Time, error) {
	v := values.Get(name)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", name)}
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", param))
		return 0, false
	}
	return id, true
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrValidation, Status: http.StatusBadRequest},
		{Error: ErrNotFound, Status: http.StatusNotFound},
		{Error: ErrConflict, Status: http.StatusConflict},
	})
}

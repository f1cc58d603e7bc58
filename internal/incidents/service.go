// Package incidents implements the incident lifecycle, its filtered queries
// and statistics, and the HTTP handlers that expose them.
package incidents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/examdesk/incidentd/internal/domain"
	"github.com/examdesk/incidentd/internal/pkg/ctxlog"
	"github.com/examdesk/incidentd/internal/pkg/metrics"
)

// Service implements incident business logic.
type Service struct {
	repo Repository
	refs References
	now  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for resolvedAt and daysOpen.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new incident service.
func NewService(repo Repository, refs References, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		refs: refs,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput holds data for reporting an incident.
type CreateInput struct {
	Type        domain.IncidentType
	Severity    *domain.Severity
	Title       string
	Description string
	ExamID      *int64
	ScriptID    *int64
}

// UpdateInput holds the fields to change on an incident. Nil fields are left as they are.
type UpdateInput struct {
	Type         *domain.IncidentType
	Severity     *domain.Severity
	Status       *domain.IncidentStatus
	Title        *string
	Description  *string
	ExamID       *int64
	ScriptID     *int64
	AssignedToID *int64
	Resolution   *string
}

func (in UpdateInput) validate() error {
	if in.Type != nil && !in.Type.IsValid() {
		return ErrInvalidType
	}
	if in.Severity != nil && !in.Severity.IsValid() {
		return ErrInvalidSeverity
	}
	if in.Status != nil && !in.Status.IsValid() {
		return ErrInvalidStatus
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return ErrTitleRequired
	}
	if in.Description != nil && strings.TrimSpace(*in.Description) == "" {
		return ErrDescriptionRequired
	}
	return nil
}

// Create reports a new incident on behalf of reporterID.
func (s *Service) Create(ctx context.Context, input CreateInput, reporterID int64) (*domain.IncidentView, error) {
	if reporterID <= 0 {
		return nil, ErrInvalidReporter
	}
	if !input.Type.IsValid() {
		return nil, ErrInvalidType
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, ErrDescriptionRequired
	}

	severity := domain.SeverityMedium
	if input.Severity != nil {
		if !input.Severity.IsValid() {
			return nil, ErrInvalidSeverity
		}
		severity = *input.Severity
	}

	if err := s.checkReferences(ctx, input.ExamID, input.ScriptID); err != nil {
		return nil, err
	}

	incident := &domain.Incident{
		Type:         input.Type,
		Severity:     severity,
		Status:       domain.IncidentStatusReported,
		Title:        title,
		Description:  description,
		ExamID:       input.ExamID,
		ScriptID:     input.ScriptID,
		ReportedByID: reporterID,
	}

	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	metrics.RecordIncidentTransition("create", string(incident.Status))
	ctxlog.FromContext(ctx).Info("incident reported",
		"incident_id", incident.ID,
		"type", incident.Type,
		"severity", incident.Severity,
		"reported_by", reporterID,
	)

	return s.Get(ctx, incident.ID)
}

// Get retrieves an incident with its relations and derived fields.
func (s *Service) Get(ctx context.Context, id int64) (*domain.IncidentView, error) {
	view, err := s.repo.GetIncidentView(ctx, id)
	if err != nil {
		return nil, err
	}
	Transform(view, s.now())
	return view, nil
}

// Update applies a generic change to an incident, keeping resolvedAt in
// step with the status.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (*domain.IncidentView, error) {
	if input.AssignedToID != nil {
		if err := s.checkUser(ctx, *input.AssignedToID); err != nil {
			return nil, err
		}
	}
	return s.update(ctx, id, input, "update")
}

// Assign hands the incident to a user and moves it under investigation,
// whatever its previous status.
func (s *Service) Assign(ctx context.Context, id, assignedToID int64) (*domain.IncidentView, error) {
	if err := s.checkUser(ctx, assignedToID); err != nil {
		return nil, err
	}
	status := domain.IncidentStatusUnderInvestigation
	return s.update(ctx, id, UpdateInput{
		AssignedToID: &assignedToID,
		Status:       &status,
	}, "assign")
}

// Resolve marks the incident resolved with the given resolution text.
func (s *Service) Resolve(ctx context.Context, id int64, resolution string) (*domain.IncidentView, error) {
	if strings.TrimSpace(resolution) == "" {
		return nil, ErrResolutionRequired
	}
	status := domain.IncidentStatusResolved
	return s.update(ctx, id, UpdateInput{
		Status:     &status,
		Resolution: &resolution,
	}, "resolve")
}

// Delete removes a resolved or closed incident.
func (s *Service) Delete(ctx context.Context, id int64) error {
	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return err
	}

	if !incident.Status.IsTerminal() {
		return ErrIncidentNotResolved
	}

	if err := s.repo.DeleteIncident(ctx, id); err != nil {
		return err
	}

	metrics.RecordIncidentTransition("delete", string(incident.Status))
	ctxlog.FromContext(ctx).Info("incident deleted", "incident_id", id)
	return nil
}

// List returns one page of incidents matching the query.
func (s *Service) List(ctx context.Context, query Query, page PageRequest) (*ListResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	page, err := page.Normalize()
	if err != nil {
		return nil, err
	}

	filter := BuildFilter(query)

	total, err := s.repo.CountIncidents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count incidents: %w", err)
	}

	views := make([]domain.IncidentView, 0)
	if page.Offset() < total {
		views, err = s.repo.ListIncidents(ctx, filter, page)
		if err != nil {
			return nil, fmt.Errorf("list incidents: %w", err)
		}
	}

	now := s.now()
	for i := range views {
		Transform(&views[i], now)
	}

	return &ListResult{
		Incidents:  views,
		Pagination: NewPagination(page.Page, page.Limit, total),
	}, nil
}

func (s *Service) update(ctx context.Context, id int64, input UpdateInput, operation string) (*domain.IncidentView, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.checkReferences(ctx, input.ExamID, input.ScriptID); err != nil {
		return nil, err
	}

	previous := incident.Status
	applyUpdate(incident, input, s.now())

	if err := s.repo.UpdateIncident(ctx, incident); err != nil {
		return nil, err
	}

	metrics.RecordIncidentTransition(operation, string(incident.Status))
	ctxlog.FromContext(ctx).Info("incident updated",
		"incident_id", id,
		"operation", operation,
		"from_status", previous,
		"to_status", incident.Status,
	)

	return s.Get(ctx, id)
}

// applyUpdate copies the supplied fields onto incident. A status moving into
// RESOLVED or CLOSED stamps resolvedAt with now; any other status clears it.
func applyUpdate(incident *domain.Incident, input UpdateInput, now time.Time) {
	if input.Type != nil {
		incident.Type = *input.Type
	}
	if input.Severity != nil {
		incident.Severity = *input.Severity
	}
	if input.Title != nil {
		incident.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		incident.Description = strings.TrimSpace(*input.Description)
	}
	if input.ExamID != nil {
		incident.ExamID = input.ExamID
	}
	if input.ScriptID != nil {
		incident.ScriptID = input.ScriptID
	}
	if input.AssignedToID != nil {
		incident.AssignedToID = input.AssignedToID
	}
	if input.Resolution != nil {
		incident.Resolution = input.Resolution
	}
	if input.Status != nil {
		incident.Status = *input.Status
		if incident.Status.IsTerminal() {
			resolvedAt := now
			incident.ResolvedAt = &resolvedAt
		} else {
			incident.ResolvedAt = nil
		}
	}
}

func (s *Service) checkReferences(ctx context.Context, examID, scriptID *int64) error {
	if examID != nil {
		ok, err := s.refs.ExamExists(ctx, *examID)
		if err != nil {
			return fmt.Errorf("check exam: %w", err)
		}
		if !ok {
			return ErrExamNotFound
		}
	}
	if scriptID != nil {
		ok, err := s.refs.ScriptExists(ctx, *scriptID)
		if err != nil {
			return fmt.Errorf("check script: %w", err)
		}
		if !ok {
			return ErrScriptNotFound
		}
	}
	return nil
}

func (s *Service) checkUser(ctx context.Context, userID int64) error {
	ok, err := s.refs.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

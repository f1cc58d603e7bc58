// Package postgres provides PostgreSQL implementation of the incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/examdesk/incidentd/internal/domain"
	"github.com/examdesk/incidentd/internal/incidents"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements incidents.Repository and incidents.References using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const incidentColumns = `
			id, type, severity, status, title, description,
			exam_id, script_id, reported_by_id, assigned_to_id,
			resolution, resolved_at, created_at, updated_at`

const viewSelect = `
		SELECT
			i.id, i.type, i.severity, i.status, i.title, i.description,
			i.exam_id, i.script_id, i.reported_by_id, i.assigned_to_id,
			i.resolution, i.resolved_at, i.created_at, i.updated_at,
			e.id, e.title, e.exam_date,
			c.id, c.code, c.name,
			v.id, v.name, v.location,
			s.id, s.code, s.student_id, s.status,
			ru.id, ru.first_name, ru.last_name, ru.email,
			au.id, au.first_name, au.last_name, au.email` + fromClause + `
		LEFT JOIN exams e ON e.id = i.exam_id
		LEFT JOIN courses c ON c.id = e.course_id
		LEFT JOIN venues v ON v.id = e.venue_id
		LEFT JOIN scripts s ON s.id = i.script_id
		LEFT JOIN users au ON au.id = i.assigned_to_id`

// CreateIncident inserts a new incident and fills its generated fields.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (
			type, severity, status, title, description,
			exam_id, script_id, reported_by_id, assigned_to_id,
			resolution, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		incident.Type,
		incident.Severity,
		incident.Status,
		incident.Title,
		incident.Description,
		incident.ExamID,
		incident.ScriptID,
		incident.ReportedByID,
		incident.AssignedToID,
		incident.Resolution,
		incident.ResolvedAt,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// GetIncident retrieves the bare incident row by ID.
func (r *Repository) GetIncident(ctx context.Context, id int64) (*domain.Incident, error) {
	query := `SELECT` + incidentColumns + `
		FROM incidents
		WHERE id = $1
	`
	var incident domain.Incident
	err := r.db.QueryRow(ctx, query, id).Scan(
		&incident.ID,
		&incident.Type,
		&incident.Severity,
		&incident.Status,
		&incident.Title,
		&incident.Description,
		&incident.ExamID,
		&incident.ScriptID,
		&incident.ReportedByID,
		&incident.AssignedToID,
		&incident.Resolution,
		&incident.ResolvedAt,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return &incident, nil
}

// GetIncidentView retrieves an incident with its exam, script, reporter and assignee.
func (r *Repository) GetIncidentView(ctx context.Context, id int64) (*domain.IncidentView, error) {
	query := viewSelect + `
		WHERE i.id = $1
	`
	view, err := scanView(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident view: %w", err)
	}
	return view, nil
}

// UpdateIncident writes every mutable column. reported_by_id is never touched.
func (r *Repository) UpdateIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		UPDATE incidents
		SET type = $2, severity = $3, status = $4, title = $5, description = $6,
		    exam_id = $7, script_id = $8, assigned_to_id = $9,
		    resolution = $10, resolved_at = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		incident.ID,
		incident.Type,
		incident.Severity,
		incident.Status,
		incident.Title,
		incident.Description,
		incident.ExamID,
		incident.ScriptID,
		incident.AssignedToID,
		incident.Resolution,
		incident.ResolvedAt,
	).Scan(&incident.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incidents.ErrIncidentNotFound
		}
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

// DeleteIncident deletes an incident by ID. Only resolved or closed
// incidents are deleted; the status check and the delete are one statement.
func (r *Repository) DeleteIncident(ctx context.Context, id int64) error {
	query := `DELETE FROM incidents WHERE id = $1 AND status IN ('RESOLVED', 'CLOSED')`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}

	if result.RowsAffected() == 0 {
		found, err := r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM incidents WHERE id = $1)`, id)
		if err != nil {
			return err
		}
		if found {
			return incidents.ErrIncidentNotResolved
		}
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// CountIncidents counts incidents matching the filter.
func (r *Repository) CountIncidents(ctx context.Context, filter incidents.Filter) (int, error) {
	where, err := buildWhere(filter)
	if err != nil {
		return 0, fmt.Errorf("build filter: %w", err)
	}

	query := `SELECT COUNT(*)` + fromClause + where.String()

	var count int
	if err := r.db.QueryRow(ctx, query, where.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	return count, nil
}

// ListIncidents returns one sorted page of incidents matching the filter.
func (r *Repository) ListIncidents(ctx context.Context, filter incidents.Filter, page incidents.PageRequest) ([]domain.IncidentView, error) {
	where, err := buildWhere(filter)
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}
	order, err := orderBy(page)
	if err != nil {
		return nil, err
	}

	query := viewSelect + where.String() + order +
		fmt.Sprintf("\n\t\tLIMIT %s OFFSET %s", where.bind(page.Limit), where.bind(page.Offset()))

	rows, err := r.db.Query(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	views := make([]domain.IncidentView, 0, page.Limit)
	for rows.Next() {
		view, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		views = append(views, *view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	return views, nil
}

// CountIncidentGroups counts incidents per (status, severity, type).
func (r *Repository) CountIncidentGroups(ctx context.Context, filter incidents.Filter) ([]domain.IncidentGroupCount, error) {
	where, err := buildWhere(filter)
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}

	query := `SELECT i.status, i.severity, i.type, COUNT(*)` + fromClause + where.String() + `
		GROUP BY i.status, i.severity, i.type
		ORDER BY i.status, i.severity, i.type`

	rows, err := r.db.Query(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("count incident groups: %w", err)
	}
	defer rows.Close()

	groups := make([]domain.IncidentGroupCount, 0)
	for rows.Next() {
		var g domain.IncidentGroupCount
		if err := rows.Scan(&g.Status, &g.Severity, &g.Type, &g.Count); err != nil {
			return nil, fmt.Errorf("scan incident group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incident groups: %w", err)
	}

	return groups, nil
}

// ExamExists reports whether the exam exists.
func (r *Repository) ExamExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM exams WHERE id = $1)`, id)
}

// ScriptExists reports whether the script exists.
func (r *Repository) ScriptExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM scripts WHERE id = $1)`, id)
}

// UserExists reports whether the user exists.
func (r *Repository) UserExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id)
}

func (r *Repository) exists(ctx context.Context, query string, id int64) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, query, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("check existence: %w", err)
	}
	return ok, nil
}

// scanView reads one row of viewSelect. Joined columns are nullable.
func scanView(row pgx.Row) (*domain.IncidentView, error) {
	var (
		v domain.IncidentView

		examID        *int64
		examTitle     *string
		examDate      *time.Time
		courseID      *int64
		courseCode    *string
		courseName    *string
		venueID       *int64
		venueName     *string
		venueLocation *string
		scriptID      *int64
		scriptCode    *string
		scriptStudent *string
		scriptStatus  *string
		reporterID    *int64
		reporterFirst *string
		reporterLast  *string
		reporterEmail *string
		assigneeID    *int64
		assigneeFirst *string
		assigneeLast  *string
		assigneeEmail *string
	)

	err := row.Scan(
		&v.ID,
		&v.Type,
		&v.Severity,
		&v.Status,
		&v.Title,
		&v.Description,
		&v.ExamID,
		&v.ScriptID,
		&v.ReportedByID,
		&v.AssignedToID,
		&v.Resolution,
		&v.ResolvedAt,
		&v.CreatedAt,
		&v.UpdatedAt,
		&examID, &examTitle, &examDate,
		&courseID, &courseCode, &courseName,
		&venueID, &venueName, &venueLocation,
		&scriptID, &scriptCode, &scriptStudent, &scriptStatus,
		&reporterID, &reporterFirst, &reporterLast, &reporterEmail,
		&assigneeID, &assigneeFirst, &assigneeLast, &assigneeEmail,
	)
	if err != nil {
		return nil, err
	}

	if examID != nil {
		v.Exam = &domain.ExamSummary{
			ID:    *examID,
			Title: deref(examTitle),
		}
		if examDate != nil {
			v.Exam.Date = *examDate
		}
		if courseID != nil {
			v.Exam.Course = &domain.CourseSummary{ID: *courseID, Code: deref(courseCode), Name: deref(courseName)}
		}
		if venueID != nil {
			v.Exam.Venue = &domain.VenueSummary{ID: *venueID, Name: deref(venueName), Location: deref(venueLocation)}
		}
	}

	if scriptID != nil {
		v.Script = &domain.ScriptSummary{
			ID:        *scriptID,
			Code:      deref(scriptCode),
			StudentID: deref(scriptStudent),
			Status:    deref(scriptStatus),
		}
	}

	v.ReportedBy = userSummary(reporterID, reporterFirst, reporterLast, reporterEmail)
	v.AssignedTo = userSummary(assigneeID, assigneeFirst, assigneeLast, assigneeEmail)

	return &v, nil
}

func userSummary(id *int64, first, last, email *string) *domain.UserSummary {
	if id == nil {
		return nil
	}
	return &domain.UserSummary{
		ID:        *id,
		FirstName: deref(first),
		LastName:  deref(last),
		Email:     deref(email),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

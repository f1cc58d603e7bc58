package postgres

import (
	"fmt"
	"strings"

	"github.com/examdesk/incidentd/internal/domain"
	"github.com/examdesk/incidentd/internal/incidents"
)

// fromClause joins the reporter so search can match on names.
const fromClause = `
		FROM incidents i
		LEFT JOIN users ru ON ru.id = i.reported_by_id`

// institutionExists walks exam → course → department → faculty.
const institutionExists = `EXISTS (
			SELECT 1
			FROM exams ie
			JOIN courses ic ON ic.id = ie.course_id
			JOIN departments idp ON idp.id = ic.department_id
			JOIN faculties ifa ON ifa.id = idp.faculty_id
			WHERE ie.id = i.exam_id AND ifa.institution_id = %s
		)`

var fieldColumns = map[incidents.Field]string{
	incidents.FieldExamID:            "i.exam_id",
	incidents.FieldScriptID:          "i.script_id",
	incidents.FieldReportedByID:      "i.reported_by_id",
	incidents.FieldAssignedToID:      "i.assigned_to_id",
	incidents.FieldType:              "i.type",
	incidents.FieldSeverity:          "i.severity",
	incidents.FieldStatus:            "i.status",
	incidents.FieldCreatedAt:         "i.created_at",
	incidents.FieldTitle:             "i.title",
	incidents.FieldDescription:       "i.description",
	incidents.FieldReporterFirstName: "ru.first_name",
	incidents.FieldReporterLastName:  "ru.last_name",
}

// severityRank and statusRank order enums by declaration rather than alphabetically.
const (
	severityRank = `CASE i.severity WHEN 'LOW' THEN 1 WHEN 'MEDIUM' THEN 2 WHEN 'HIGH' THEN 3 WHEN 'CRITICAL' THEN 4 END`
	statusRank   = `CASE i.status WHEN 'REPORTED' THEN 1 WHEN 'UNDER_INVESTIGATION' THEN 2 WHEN 'RESOLVED' THEN 3 WHEN 'CLOSED' THEN 4 END`
)

var sortColumns = map[string]string{
	"id":         "i.id",
	"createdAt":  "i.created_at",
	"updatedAt":  "i.updated_at",
	"resolvedAt": "i.resolved_at",
	"severity":   severityRank,
	"status":     statusRank,
	"type":       "i.type",
	"title":      "i.title",
}

// whereClause accumulates SQL conditions and their positional arguments.
type whereClause struct {
	conditions []string
	args       []any
}

func (w *whereClause) bind(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

// String renders the WHERE clause, or an empty string when there are no conditions.
func (w *whereClause) String() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return "\n\t\tWHERE " + strings.Join(w.conditions, "\n\t\t  AND ")
}

// buildWhere compiles a filter into SQL. Clauses are AND-ed, terms inside a clause OR-ed.
func buildWhere(filter incidents.Filter) (*whereClause, error) {
	w := &whereClause{}
	for _, clause := range filter.Clauses {
		if len(clause.Terms) == 0 {
			continue
		}
		parts := make([]string, 0, len(clause.Terms))
		for _, term := range clause.Terms {
			sql, err := w.term(term)
			if err != nil {
				return nil, err
			}
			parts = append(parts, sql)
		}
		if len(parts) == 1 {
			w.conditions = append(w.conditions, parts[0])
		} else {
			w.conditions = append(w.conditions, "("+strings.Join(parts, " OR ")+")")
		}
	}
	return w, nil
}

func (w *whereClause) term(t incidents.Term) (string, error) {
	if t.Field == incidents.FieldInstitutionID {
		if t.Op != incidents.OpEq {
			return "", fmt.Errorf("unsupported operator %q for %s", t.Op, t.Field)
		}
		return fmt.Sprintf(institutionExists, w.bind(t.Value)), nil
	}

	column, ok := fieldColumns[t.Field]
	if !ok {
		return "", fmt.Errorf("unknown filter field %q", t.Field)
	}

	switch t.Op {
	case incidents.OpEq:
		return column + " = " + w.bind(scalar(t.Value)), nil
	case incidents.OpGte:
		return column + " >= " + w.bind(t.Value), nil
	case incidents.OpLte:
		return column + " <= " + w.bind(t.Value), nil
	case incidents.OpIn:
		values, err := stringSlice(t.Value)
		if err != nil {
			return "", fmt.Errorf("filter %s: %w", t.Field, err)
		}
		return column + " = ANY(" + w.bind(values) + ")", nil
	case incidents.OpContainsFold:
		s, ok := t.Value.(string)
		if !ok {
			return "", fmt.Errorf("filter %s: contains_fold needs a string, got %T", t.Field, t.Value)
		}
		return column + " ILIKE " + w.bind("%"+escapeLike(s)+"%"), nil
	default:
		return "", fmt.Errorf("unsupported operator %q", t.Op)
	}
}

// scalar unwraps the domain string enums to plain strings for the driver.
func scalar(v any) any {
	switch x := v.(type) {
	case domain.IncidentType:
		return string(x)
	case domain.Severity:
		return string(x)
	case domain.IncidentStatus:
		return string(x)
	default:
		return v
	}
}

func stringSlice(v any) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return x, nil
	case []domain.IncidentStatus:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = string(s)
		}
		return out, nil
	case []domain.Severity:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = string(s)
		}
		return out, nil
	case []domain.IncidentType:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = string(s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported IN value %T", v)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// orderBy renders the ORDER BY clause. The id tie-breaker keeps pages stable.
func orderBy(page incidents.PageRequest) (string, error) {
	column, ok := sortColumns[page.SortBy]
	if !ok {
		return "", incidents.ErrInvalidSortField
	}
	direction := "DESC"
	if page.SortOrder == incidents.SortAsc {
		direction = "ASC"
	}
	clause := fmt.Sprintf("\n\t\tORDER BY %s %s", column, direction)
	if page.SortBy == "resolvedAt" {
		clause += " NULLS LAST"
	}
	if page.SortBy != "id" {
		clause += ", i.id " + direction
	}
	return clause, nil
}

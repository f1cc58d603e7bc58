package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/examdesk/incidentd/internal/domain"
	"github.com/examdesk/incidentd/internal/incidents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWhere_Empty(t *testing.T) {
	where, err := buildWhere(incidents.Filter{})
	require.NoError(t, err)

	assert.Empty(t, where.String())
	assert.Empty(t, where.args)
}

func TestBuildWhere_ClausesAreAnded(t *testing.T) {
	filter := incidents.NewFilterBuilder().
		ExamID(7).
		Status(domain.IncidentStatusReported).
		Build()

	where, err := buildWhere(filter)
	require.NoError(t, err)

	sql := where.String()
	assert.Contains(t, sql, "i.exam_id = $1")
	assert.Contains(t, sql, "AND i.status = $2")
	assert.Equal(t, []any{int64(7), "REPORTED"}, where.args)
}

func TestBuildWhere_SearchIsOneOrGroup(t *testing.T) {
	filter := incidents.NewFilterBuilder().Search("  50%_off  ").Build()

	where, err := buildWhere(filter)
	require.NoError(t, err)

	sql := where.String()
	assert.Contains(t, sql, "(i.title ILIKE $1 OR i.description ILIKE $2 OR ru.first_name ILIKE $3 OR ru.last_name ILIKE $4)")
	require.Len(t, where.args, 4)
	for _, arg := range where.args {
		assert.Equal(t, `%50\%\_off%`, arg)
	}
}

func TestBuildWhere_ExamAndInstitutionBothApply(t *testing.T) {
	filter := incidents.NewFilterBuilder().
		ExamID(3).
		InstitutionID(9).
		Build()

	where, err := buildWhere(filter)
	require.NoError(t, err)

	sql := where.String()
	assert.Contains(t, sql, "i.exam_id = $1")
	assert.Contains(t, sql, "ifa.institution_id = $2")
	assert.Equal(t, 1, strings.Count(sql, "EXISTS"))
	assert.Equal(t, []any{int64(3), int64(9)}, where.args)
}

func TestBuildWhere_StatusIn(t *testing.T) {
	filter := incidents.NewFilterBuilder().
		StatusIn(domain.IncidentStatusReported, domain.IncidentStatusUnderInvestigation).
		Build()

	where, err := buildWhere(filter)
	require.NoError(t, err)

	assert.Contains(t, where.String(), "i.status = ANY($1)")
	assert.Equal(t, []any{[]string{"REPORTED", "UNDER_INVESTIGATION"}}, where.args)
}

func TestBuildWhere_DateRange(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	where, err := buildWhere(incidents.NewFilterBuilder().CreatedFrom(from).CreatedTo(to).Build())
	require.NoError(t, err)

	sql := where.String()
	assert.Contains(t, sql, "i.created_at >= $1")
	assert.Contains(t, sql, "i.created_at <= $2")
}

func TestBuildWhere_UnknownField(t *testing.T) {
	filter := incidents.Filter{Clauses: []incidents.Clause{{
		Terms: []incidents.Term{{Field: "venue", Op: incidents.OpEq, Value: 1}},
	}}}

	_, err := buildWhere(filter)
	assert.Error(t, err)
}

func TestOrderBy(t *testing.T) {
	tests := []struct {
		name     string
		page     incidents.PageRequest
		contains string
		wantErr  bool
	}{
		{
			name:     "created at desc with tie breaker",
			page:     incidents.PageRequest{SortBy: "createdAt", SortOrder: incidents.SortDesc},
			contains: "ORDER BY i.created_at DESC, i.id DESC",
		},
		{
			name:     "severity ranks by enum order",
			page:     incidents.PageRequest{SortBy: "severity", SortOrder: incidents.SortAsc},
			contains: "WHEN 'CRITICAL' THEN 4 END ASC",
		},
		{
			name:     "resolved at keeps open incidents last",
			page:     incidents.PageRequest{SortBy: "resolvedAt", SortOrder: incidents.SortAsc},
			contains: "i.resolved_at ASC NULLS LAST",
		},
		{
			name:    "unknown column",
			page:    incidents.PageRequest{SortBy: "password", SortOrder: incidents.SortAsc},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, err := orderBy(tt.page)
			if tt.wantErr {
				assert.ErrorIs(t, err, incidents.ErrInvalidSortField)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, clause, tt.contains)
		})
	}
}

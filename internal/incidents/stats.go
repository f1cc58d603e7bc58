package incidents

import (
	"context"
	"fmt"

	"github.com/examdesk/incidentd/internal/domain"
)

// Stats is the aggregated overview of incidents.
type Stats struct {
	Total      int                           `json:"total"`
	Open       int                           `json:"open"`
	Resolved   int                           `json:"resolved"`
	Closed     int                           `json:"closed"`
	ByStatus   map[domain.IncidentStatus]int `json:"byStatus"`
	BySeverity map[domain.Severity]int       `json:"bySeverity"`
	ByType     map[domain.IncidentType]int   `json:"byType"`
	Breakdown  []domain.IncidentGroupCount   `json:"breakdown"`
}

// Stats aggregates the incidents matching the query.
func (s *Service) Stats(ctx context.Context, query Query) (*Stats, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	base := BuildFilter(query)

	groups, err := s.repo.CountIncidentGroups(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("count incident groups: %w", err)
	}

	total, err := s.repo.CountIncidents(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("count incidents: %w", err)
	}

	openFilter := base.And(NewFilterBuilder().
		StatusIn(domain.IncidentStatusReported, domain.IncidentStatusUnderInvestigation).
		Build())
	open, err := s.repo.CountIncidents(ctx, openFilter)
	if err != nil {
		return nil, fmt.Errorf("count open incidents: %w", err)
	}

	resolvedFilter := base.And(NewFilterBuilder().Status(domain.IncidentStatusResolved).Build())
	resolved, err := s.repo.CountIncidents(ctx, resolvedFilter)
	if err != nil {
		return nil, fmt.Errorf("count resolved incidents: %w", err)
	}

	stats := Aggregate(total, open, resolved, groups)
	return &stats, nil
}

// Aggregate reshapes grouped counts into per-dimension maps. Closed is
// derived as total - open - resolved and never counted on its own.
func Aggregate(total, open, resolved int, groups []domain.IncidentGroupCount) Stats {
	stats := Stats{
		Total:      total,
		Open:       open,
		Resolved:   resolved,
		Closed:     total - open - resolved,
		ByStatus:   make(map[domain.IncidentStatus]int),
		BySeverity: make(map[domain.Severity]int),
		ByType:     make(map[domain.IncidentType]int),
		Breakdown:  make([]domain.IncidentGroupCount, 0, len(groups)),
	}

	for _, g := range groups {
		stats.ByStatus[g.Status] += g.Count
		stats.BySeverity[g.Severity] += g.Count
		stats.ByType[g.Type] += g.Count
		stats.Breakdown = append(stats.Breakdown, g)
	}

	return stats
}

package incidents

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/examdesk/incidentd/internal/domain"
)

// memStore implements Repository and References in memory. It evaluates
// filters the way the SQL compiler does so service tests exercise real
// filter semantics.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	now       func() time.Time
	incidents map[int64]domain.Incident
	users     map[int64]domain.UserSummary
	scripts   map[int64]bool
	// exam id → institution id
	exams map[int64]int64

	countErr error
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:       now,
		incidents: make(map[int64]domain.Incident),
		users:     make(map[int64]domain.UserSummary),
		scripts:   make(map[int64]bool),
		exams:     make(map[int64]int64),
	}
}

func (m *memStore) addUser(id int64, first, last string) {
	m.users[id] = domain.UserSummary{ID: id, FirstName: first, LastName: last, Email: first + "@example.com"}
}

// seed stores incident as-is, assigning an ID when it has none.
func (m *memStore) seed(incident domain.Incident) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if incident.ID == 0 {
		m.nextID++
		incident.ID = m.nextID
	} else if incident.ID > m.nextID {
		m.nextID = incident.ID
	}
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = m.now()
	}
	if incident.UpdatedAt.IsZero() {
		incident.UpdatedAt = incident.CreatedAt
	}
	m.incidents[incident.ID] = incident
	return incident.ID
}

func (m *memStore) stored(id int64) (domain.Incident, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	return inc, ok
}

func (m *memStore) CreateIncident(_ context.Context, incident *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	incident.ID = m.nextID
	incident.CreatedAt = m.now()
	incident.UpdatedAt = incident.CreatedAt
	m.incidents[incident.ID] = *incident
	return nil
}

func (m *memStore) GetIncident(_ context.Context, id int64) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	return &inc, nil
}

func (m *memStore) GetIncidentView(_ context.Context, id int64) (*domain.IncidentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	v := m.view(inc)
	return &v, nil
}

func (m *memStore) UpdateIncident(_ context.Context, incident *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.incidents[incident.ID]
	if !ok {
		return ErrIncidentNotFound
	}
	incident.ReportedByID = current.ReportedByID
	incident.CreatedAt = current.CreatedAt
	incident.UpdatedAt = m.now()
	m.incidents[incident.ID] = *incident
	return nil
}

func (m *memStore) DeleteIncident(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	incident, ok := m.incidents[id]
	if !ok {
		return ErrIncidentNotFound
	}
	if !incident.Status.IsTerminal() {
		return ErrIncidentNotResolved
	}
	delete(m.incidents, id)
	return nil
}

func (m *memStore) CountIncidents(_ context.Context, filter Filter) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(filter)), nil
}

func (m *memStore) ListIncidents(_ context.Context, filter Filter, page PageRequest) ([]domain.IncidentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := m.matching(filter)
	sort.Slice(views, func(i, j int) bool {
		a, b := views[i], views[j]
		less := a.ID < b.ID
		if page.SortBy != "id" && !a.CreatedAt.Equal(b.CreatedAt) {
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if page.SortOrder == SortDesc {
			return !less
		}
		return less
	})

	start := page.Offset()
	if start >= len(views) {
		return []domain.IncidentView{}, nil
	}
	end := start + page.Limit
	if end > len(views) {
		end = len(views)
	}
	return views[start:end], nil
}

func (m *memStore) CountIncidentGroups(_ context.Context, filter Filter) ([]domain.IncidentGroupCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type key struct {
		status   domain.IncidentStatus
		severity domain.Severity
		typ      domain.IncidentType
	}
	counts := make(map[key]int)
	for _, v := range m.matching(filter) {
		counts[key{v.Status, v.Severity, v.Type}]++
	}

	groups := make([]domain.IncidentGroupCount, 0, len(counts))
	for k, n := range counts {
		groups = append(groups, domain.IncidentGroupCount{Status: k.status, Severity: k.severity, Type: k.typ, Count: n})
	}
	return groups, nil
}

func (m *memStore) ExamExists(_ context.Context, id int64) (bool, error) {
	_, ok := m.exams[id]
	return ok, nil
}

func (m *memStore) ScriptExists(_ context.Context, id int64) (bool, error) {
	return m.scripts[id], nil
}

func (m *memStore) UserExists(_ context.Context, id int64) (bool, error) {
	_, ok := m.users[id]
	return ok, nil
}

func (m *memStore) view(inc domain.Incident) domain.IncidentView {
	v := domain.IncidentView{Incident: inc}
	if inc.ExamID != nil {
		v.Exam = &domain.ExamSummary{ID: *inc.ExamID}
	}
	if inc.ScriptID != nil {
		v.Script = &domain.ScriptSummary{ID: *inc.ScriptID}
	}
	if u, ok := m.users[inc.ReportedByID]; ok {
		v.ReportedBy = &u
	}
	if inc.AssignedToID != nil {
		if u, ok := m.users[*inc.AssignedToID]; ok {
			v.AssignedTo = &u
		}
	}
	return v
}

func (m *memStore) matching(filter Filter) []domain.IncidentView {
	out := make([]domain.IncidentView, 0)
	for _, inc := range m.incidents {
		v := m.view(inc)
		if m.matches(v, filter) {
			out = append(out, v)
		}
	}
	return out
}

func (m *memStore) matches(v domain.IncidentView, filter Filter) bool {
	for _, clause := range filter.Clauses {
		if len(clause.Terms) == 0 {
			continue
		}
		hit := false
		for _, term := range clause.Terms {
			if m.matchTerm(v, term) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func (m *memStore) matchTerm(v domain.IncidentView, t Term) bool {
	switch t.Field {
	case FieldExamID:
		return v.ExamID != nil && *v.ExamID == t.Value.(int64)
	case FieldScriptID:
		return v.ScriptID != nil && *v.ScriptID == t.Value.(int64)
	case FieldReportedByID:
		return v.ReportedByID == t.Value.(int64)
	case FieldAssignedToID:
		return v.AssignedToID != nil && *v.AssignedToID == t.Value.(int64)
	case FieldType:
		return v.Type == t.Value.(domain.IncidentType)
	case FieldSeverity:
		return v.Severity == t.Value.(domain.Severity)
	case FieldStatus:
		if t.Op == OpIn {
			for _, s := range t.Value.([]domain.IncidentStatus) {
				if v.Status == s {
					return true
				}
			}
			return false
		}
		return v.Status == t.Value.(domain.IncidentStatus)
	case FieldCreatedAt:
		at := t.Value.(time.Time)
		if t.Op == OpGte {
			return !v.CreatedAt.Before(at)
		}
		return !v.CreatedAt.After(at)
	case FieldTitle:
		return containsFold(v.Title, t.Value.(string))
	case FieldDescription:
		return containsFold(v.Description, t.Value.(string))
	case FieldReporterFirstName:
		return v.ReportedBy != nil && containsFold(v.ReportedBy.FirstName, t.Value.(string))
	case FieldReporterLastName:
		return v.ReportedBy != nil && containsFold(v.ReportedBy.LastName, t.Value.(string))
	case FieldInstitutionID:
		if v.ExamID == nil {
			return false
		}
		inst, ok := m.exams[*v.ExamID]
		return ok && inst == t.Value.(int64)
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

var errStoreDown = errors.New("connection refused")

package incidents

import (
	"strings"
	"time"

	"github.com/examdesk/incidentd/internal/domain"
)

// Field is a filterable incident attribute.
type Field string

// Filterable fields.
const (
	FieldExamID            Field = "examId"
	FieldScriptID          Field = "scriptId"
	FieldReportedByID      Field = "reportedById"
	FieldAssignedToID      Field = "assignedToId"
	FieldType              Field = "type"
	FieldSeverity          Field = "severity"
	FieldStatus            Field = "status"
	FieldCreatedAt         Field = "createdAt"
	FieldTitle             Field = "title"
	FieldDescription       Field = "description"
	FieldReporterFirstName Field = "reporter.firstName"
	FieldReporterLastName  Field = "reporter.lastName"
	// FieldInstitutionID matches through exam → course → department → faculty → institution.
	FieldInstitutionID Field = "exam.course.department.faculty.institutionId"
)

// Op is a comparison operator.
type Op string

// Operators.
const (
	OpEq           Op = "eq"
	OpIn           Op = "in"
	OpGte          Op = "gte"
	OpLte          Op = "lte"
	OpContainsFold Op = "contains_fold"
)

// Term is a single comparison. For OpIn, Value is a slice.
type Term struct {
	Field Field
	Op    Op
	Value any
}

// Clause matches when any of its terms matches.
type Clause struct {
	Terms []Term
}

// Filter matches incidents satisfying every clause. The zero Filter matches everything.
type Filter struct {
	Clauses []Clause
}

// IsEmpty reports whether the filter has no clauses.
func (f Filter) IsEmpty() bool {
	return len(f.Clauses) == 0
}

// And returns a new filter with the clauses of f followed by those of other.
func (f Filter) And(other Filter) Filter {
	clauses := make([]Clause, 0, len(f.Clauses)+len(other.Clauses))
	clauses = append(clauses, f.Clauses...)
	clauses = append(clauses, other.Clauses...)
	return Filter{Clauses: clauses}
}

// Query is the set of optional filter dimensions accepted by listing and stats.
type Query struct {
	ExamID        *int64
	ScriptID      *int64
	ReportedByID  *int64
	AssignedToID  *int64
	Type          *domain.IncidentType
	Severity      *domain.Severity
	Status        *domain.IncidentStatus
	StartDate     *time.Time
	EndDate       *time.Time
	Search        string
	InstitutionID *int64
}

// Validate checks enum membership and the date range.
func (q Query) Validate() error {
	if q.Type != nil && !q.Type.IsValid() {
		return ErrInvalidType
	}
	if q.Severity != nil && !q.Severity.IsValid() {
		return ErrInvalidSeverity
	}
	if q.Status != nil && !q.Status.IsValid() {
		return ErrInvalidStatus
	}
	if q.StartDate != nil && q.EndDate != nil && q.StartDate.After(*q.EndDate) {
		return ErrInvalidDateRange
	}
	return nil
}

// FilterBuilder composes a Filter one dimension at a time.
// Each method appends an independent clause; nothing is ever overwritten.
type FilterBuilder struct {
	clauses []Clause
}

// NewFilterBuilder creates an empty builder.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{}
}

func (b *FilterBuilder) add(terms ...Term) *FilterBuilder {
	b.clauses = append(b.clauses, Clause{Terms: terms})
	return b
}

// ExamID restricts to incidents on the exam.
func (b *FilterBuilder) ExamID(id int64) *FilterBuilder {
	return b.add(Term{Field: FieldExamID, Op: OpEq, Value: id})
}

// ScriptID restricts to incidents on the script.
func (b *FilterBuilder) ScriptID(id int64) *FilterBuilder {
	return b.add(Term{Field: FieldScriptID, Op: OpEq, Value: id})
}

// ReportedByID restricts to incidents reported by the user.
func (b *FilterBuilder) ReportedByID(id int64) *FilterBuilder {
	return b.add(Term{Field: FieldReportedByID, Op: OpEq, Value: id})
}

// AssignedToID restricts to incidents assigned to the user.
func (b *FilterBuilder) AssignedToID(id int64) *FilterBuilder {
	return b.add(Term{Field: FieldAssignedToID, Op: OpEq, Value: id})
}

// Type restricts to one incident type.
func (b *FilterBuilder) Type(t domain.IncidentType) *FilterBuilder {
	return b.add(Term{Field: FieldType, Op: OpEq, Value: t})
}

// Severity restricts to one severity.
func (b *FilterBuilder) Severity(s domain.Severity) *FilterBuilder {
	return b.add(Term{Field: FieldSeverity, Op: OpEq, Value: s})
}

// Status restricts to one status.
func (b *FilterBuilder) Status(s domain.IncidentStatus) *FilterBuilder {
	return b.add(Term{Field: FieldStatus, Op: OpEq, Value: s})
}

// StatusIn restricts to any of the statuses.
func (b *FilterBuilder) StatusIn(statuses ...domain.IncidentStatus) *FilterBuilder {
	return b.add(Term{Field: FieldStatus, Op: OpIn, Value: statuses})
}

// CreatedFrom restricts to incidents created at or after t.
func (b *FilterBuilder) CreatedFrom(t time.Time) *FilterBuilder {
	return b.add(Term{Field: FieldCreatedAt, Op: OpGte, Value: t})
}

// CreatedTo restricts to incidents created at or before t.
func (b *FilterBuilder) CreatedTo(t time.Time) *FilterBuilder {
	return b.add(Term{Field: FieldCreatedAt, Op: OpLte, Value: t})
}

// Search matches text case-insensitively in the title, the description
// or the reporter's first or last name. Blank text adds nothing.
func (b *FilterBuilder) Search(text string) *FilterBuilder {
	text = strings.TrimSpace(text)
	if text == "" {
		return b
	}
	return b.add(
		Term{Field: FieldTitle, Op: OpContainsFold, Value: text},
		Term{Field: FieldDescription, Op: OpContainsFold, Value: text},
		Term{Field: FieldReporterFirstName, Op: OpContainsFold, Value: text},
		Term{Field: FieldReporterLastName, Op: OpContainsFold, Value: text},
	)
}

// InstitutionID restricts to incidents whose exam belongs to the institution.
func (b *FilterBuilder) InstitutionID(id int64) *FilterBuilder {
	return b.add(Term{Field: FieldInstitutionID, Op: OpEq, Value: id})
}

// Build returns the composed filter.
func (b *FilterBuilder) Build() Filter {
	clauses := make([]Clause, len(b.clauses))
	copy(clauses, b.clauses)
	return Filter{Clauses: clauses}
}

// BuildFilter translates a query into a filter. Absent fields contribute nothing.
func BuildFilter(q Query) Filter {
	b := NewFilterBuilder()
	if q.ExamID != nil {
		b.ExamID(*q.ExamID)
	}
	if q.ScriptID != nil {
		b.ScriptID(*q.ScriptID)
	}
	if q.ReportedByID != nil {
		b.ReportedByID(*q.ReportedByID)
	}
	if q.AssignedToID != nil {
		b.AssignedToID(*q.AssignedToID)
	}
	if q.Type != nil {
		b.Type(*q.Type)
	}
	if q.Severity != nil {
		b.Severity(*q.Severity)
	}
	if q.Status != nil {
		b.Status(*q.Status)
	}
	if q.StartDate != nil {
		b.CreatedFrom(*q.StartDate)
	}
	if q.EndDate != nil {
		b.CreatedTo(*q.EndDate)
	}
	b.Search(q.Search)
	if q.InstitutionID != nil {
		b.InstitutionID(*q.InstitutionID)
	}
	return b.Build()
}

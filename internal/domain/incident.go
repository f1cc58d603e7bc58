// Package domain contains the core entities shared across the service.
package domain

import "time"

// IncidentType is the category of an incident.
type IncidentType string

// Incident types.
const (
	IncidentTypeTechnical      IncidentType = "TECHNICAL"
	IncidentTypeSecurity       IncidentType = "SECURITY"
	IncidentTypeNetwork        IncidentType = "NETWORK"
	IncidentTypePower          IncidentType = "POWER"
	IncidentTypeScriptHandling IncidentType = "SCRIPT_HANDLING"
	IncidentTypeMalpractice    IncidentType = "MALPRACTICE"
	IncidentTypeLogistics      IncidentType = "LOGISTICS"
	IncidentTypeHealth         IncidentType = "HEALTH"
	IncidentTypeOther          IncidentType = "OTHER"
)

// IncidentTypes lists every valid incident type.
var IncidentTypes = []IncidentType{
	IncidentTypeTechnical,
	IncidentTypeSecurity,
	IncidentTypeNetwork,
	IncidentTypePower,
	IncidentTypeScriptHandling,
	IncidentTypeMalpractice,
	IncidentTypeLogistics,
	IncidentTypeHealth,
	IncidentTypeOther,
}

// IsValid checks if the incident type is valid.
func (t IncidentType) IsValid() bool {
	for _, v := range IncidentTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Severity is the importance tier of an incident.
type Severity string

// Severity levels.
const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every valid severity, lowest first.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// IsValid checks if the severity is valid.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Priority returns the display label derived from the severity.
func (s Severity) Priority() Priority {
	switch s {
	case SeverityCritical:
		return PriorityCritical
	case SeverityHigh:
		return PriorityHigh
	case SeverityMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Priority is a display label derived one-to-one from Severity.
type Priority string

// Priorities.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IncidentStatus is the lifecycle stage of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusReported           IncidentStatus = "REPORTED"
	IncidentStatusUnderInvestigation IncidentStatus = "UNDER_INVESTIGATION"
	IncidentStatusResolved           IncidentStatus = "RESOLVED"
	IncidentStatusClosed             IncidentStatus = "CLOSED"
)

// IncidentStatuses lists every valid status in lifecycle order.
var IncidentStatuses = []IncidentStatus{
	IncidentStatusReported,
	IncidentStatusUnderInvestigation,
	IncidentStatusResolved,
	IncidentStatusClosed,
}

// IsValid checks if the status is valid.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusReported, IncidentStatusUnderInvestigation,
		IncidentStatusResolved, IncidentStatusClosed:
		return true
	}
	return false
}

// IsTerminal reports whether the status is RESOLVED or CLOSED.
// Terminal incidents carry a resolvedAt timestamp and may be deleted.
func (s IncidentStatus) IsTerminal() bool {
	return s == IncidentStatusResolved || s == IncidentStatusClosed
}

// IsOpen reports whether the status is REPORTED or UNDER_INVESTIGATION.
func (s IncidentStatus) IsOpen() bool {
	return s == IncidentStatusReported || s == IncidentStatusUnderInvestigation
}

// Incident is an operational problem reported during an exam.
type Incident struct {
	ID           int64          `json:"id"`
	Type         IncidentType   `json:"type"`
	Severity     Severity       `json:"severity"`
	Status       IncidentStatus `json:"status"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	ExamID       *int64         `json:"examId"`
	ScriptID     *int64         `json:"scriptId"`
	ReportedByID int64          `json:"reportedById"`
	AssignedToID *int64         `json:"assignedToId"`
	Resolution   *string        `json:"resolution"`
	ResolvedAt   *time.Time     `json:"resolvedAt"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// CourseSummary is the course projection attached to an exam.
type CourseSummary struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// VenueSummary is the venue projection attached to an exam.
type VenueSummary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// ExamSummary is the exam projection attached to an incident.
type ExamSummary struct {
	ID     int64          `json:"id"`
	Title  string         `json:"title"`
	Date   time.Time      `json:"date"`
	Course *CourseSummary `json:"course"`
	Venue  *VenueSummary  `json:"venue"`
}

// ScriptSummary is the script projection attached to an incident.
type ScriptSummary struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	StudentID string `json:"studentId"`
	Status    string `json:"status"`
}

// UserSummary is the user projection used for reporter and assignee.
type UserSummary struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// IncidentView is the read model returned to clients: the incident with
// its related records and the derived fields.
type IncidentView struct {
	Incident
	Exam       *ExamSummary   `json:"exam"`
	Script     *ScriptSummary `json:"script"`
	ReportedBy *UserSummary   `json:"reportedBy"`
	AssignedTo *UserSummary   `json:"assignedTo"`
	DaysOpen   *int           `json:"daysOpen,omitempty"`
	Priority   Priority       `json:"priority"`
}

// IncidentGroupCount is the number of incidents sharing a status, severity and type.
type IncidentGroupCount struct {
	Status   IncidentStatus `json:"status"`
	Severity Severity       `json:"severity"`
	Type     IncidentType   `json:"type"`
	Count    int            `json:"count"`
}

package incidents

import (
	"context"

	"github.com/examdesk/incidentd/internal/domain"
)

// Repository defines the interface for incident storage.
type Repository interface {
	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id int64) (*domain.Incident, error)
	GetIncidentView(ctx context.Context, id int64) (*domain.IncidentView, error)
	UpdateIncident(ctx context.Context, incident *domain.Incident) error
	// DeleteIncident returns ErrIncidentNotResolved, leaving the row in
	// place, when the stored incident is not resolved or closed.
	DeleteIncident(ctx context.Context, id int64) error

	CountIncidents(ctx context.Context, filter Filter) (int, error)
	ListIncidents(ctx context.Context, filter Filter, page PageRequest) ([]domain.IncidentView, error)
	CountIncidentGroups(ctx context.Context, filter Filter) ([]domain.IncidentGroupCount, error)
}

// References checks that records owned by other modules exist.
type References interface {
	ExamExists(ctx context.Context, id int64) (bool, error)
	ScriptExists(ctx context.Context, id int64) (bool, error)
	UserExists(ctx context.Context, id int64) (bool, error)
}

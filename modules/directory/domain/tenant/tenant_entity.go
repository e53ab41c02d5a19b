package tenant

import (
	"time"

	"github.com/google/uuid"
)

type EntityType string

const (
	EntityUser       EntityType = "user"
	EntityDepartment EntityType = "department"
)

// Entity is one tenant-visible projection of a data-source entity. ExternalID
// is generated once at creation and never regenerated, even across re-syncs.
type Entity struct {
	ID           int64
	TenantID     uuid.UUID
	DataSourceID uuid.UUID
	EntityType   EntityType
	EntityID     int64
	ExternalID   string
	CreatedAt    time.Time
}

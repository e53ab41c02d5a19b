package datasource

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeLocal Type = "local"
	TypeLDAP  Type = "ldap"
	TypeExcel Type = "excel"
	TypeHR    Type = "hr"
)

// SyncMode controls whether entities absent from the current batch are left
// untouched (incremental) or deleted (full).
type SyncMode string

const (
	ModeFull        SyncMode = "full"
	ModeIncremental SyncMode = "incremental"
)

// SyncPolicy controls whether entities and edges present on both sides are
// updated to match the new data (overwrite) or left as-is (append).
type SyncPolicy string

const (
	PolicyOverwrite SyncPolicy = "overwrite"
	PolicyAppend    SyncPolicy = "append"
)

// ExternalIDStrategy selects how tenant-scoped external IDs are generated at
// projection time. Generated once, never regenerated.
type ExternalIDStrategy string

const (
	StrategyUUID           ExternalIDStrategy = "uuid"
	StrategyUsername       ExternalIDStrategy = "username"
	StrategyUsernameDomain ExternalIDStrategy = "username_domain"
)

type DataSource struct {
	id         uuid.UUID
	tenantID   uuid.UUID
	name       string
	typ        Type
	mode       SyncMode
	policy     SyncPolicy
	idStrategy ExternalIDStrategy
	// usernameFrozen marks sources whose external IDs were derived from
	// usernames earlier in their lifecycle; username rewriting is disabled
	// for them so already-issued IDs keep resolving.
	usernameFrozen bool
	cronExpr       string
	domain         string
	settings       Settings
	createdAt      time.Time
	updatedAt      time.Time
}

func New(tenantID uuid.UUID, name string, typ Type, mode SyncMode, policy SyncPolicy, idStrategy ExternalIDStrategy) DataSource {
	return DataSource{
		tenantID:   tenantID,
		name:       strings.TrimSpace(name),
		typ:        typ,
		mode:       mode,
		policy:     policy,
		idStrategy: idStrategy,
	}
}

func Hydrate(
	id uuid.UUID,
	tenantID uuid.UUID,
	name string,
	typ Type,
	mode SyncMode,
	policy SyncPolicy,
	idStrategy ExternalIDStrategy,
	usernameFrozen bool,
	cronExpr string,
	domain string,
	settings Settings,
	createdAt time.Time,
	updatedAt time.Time,
) DataSource {
	return DataSource{
		id:             id,
		tenantID:       tenantID,
		name:           strings.TrimSpace(name),
		typ:            typ,
		mode:           mode,
		policy:         policy,
		idStrategy:     idStrategy,
		usernameFrozen: usernameFrozen,
		cronExpr:       cronExpr,
		domain:         domain,
		settings:       settings,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

func (d DataSource) ID() uuid.UUID                { return d.id }
func (d DataSource) TenantID() uuid.UUID          { return d.tenantID }
func (d DataSource) Name() string                 { return d.name }
func (d DataSource) Type() Type                   { return d.typ }
func (d DataSource) Mode() SyncMode               { return d.mode }
func (d DataSource) Policy() SyncPolicy           { return d.policy }
func (d DataSource) Strategy() ExternalIDStrategy { return d.idStrategy }
func (d DataSource) UsernameFrozen() bool         { return d.usernameFrozen }
func (d DataSource) CronExpr() string             { return d.cronExpr }
func (d DataSource) Domain() string               { return d.domain }
func (d DataSource) Settings() Settings           { return d.settings }
func (d DataSource) CreatedAt() time.Time         { return d.createdAt }
func (d DataSource) UpdatedAt() time.Time         { return d.updatedAt }
func (d DataSource) IsZero() bool                 { return d.id == uuid.Nil && d.name == "" }
func (d DataSource) Syncable() bool               { return d.typ != TypeLocal }

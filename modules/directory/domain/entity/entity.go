package entity

import (
	"time"

	"github.com/google/uuid"
)

// Department is a data-source scoped department row. ID is assigned once by
// the database and never reused for a different code.
type Department struct {
	ID           int64
	DataSourceID uuid.UUID
	Code         string
	Name         string
	Extras       map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FieldsEqual reports whether the syncable fields match. ID and timestamps are
// excluded: the diff only cares about externally sourced data.
func (d Department) FieldsEqual(other Department) bool {
	return d.Name == other.Name && extrasEqual(d.Extras, other.Extras)
}

// User is a data-source scoped user row. PasswordHash is set once at creation
// and never rewritten by a sync.
type User struct {
	ID           int64
	DataSourceID uuid.UUID
	Code         string
	Username     string
	DisplayName  string
	Email        string
	Phone        string
	PasswordHash string
	Extras       map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FieldsEqual reports whether the syncable fields match. When usernameFrozen
// is set the username column is not rewritable, so it is excluded from the
// comparison as well.
func (u User) FieldsEqual(other User, usernameFrozen bool) bool {
	if !usernameFrozen && u.Username != other.Username {
		return false
	}
	return u.DisplayName == other.DisplayName &&
		u.Email == other.Email &&
		u.Phone == other.Phone &&
		extrasEqual(u.Extras, other.Extras)
}

func extrasEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// DepartmentRelation is one nested-set row. Within one TreeID, Lft < Rght and
// A is an ancestor of B iff A's interval strictly contains B's.
type DepartmentRelation struct {
	DataSourceID uuid.UUID
	DepartmentID int64
	ParentID     *int64
	TreeID       int64
	Lft          int
	Rght         int
	Level        int
}

// Edge is a payload-free relation between two entity IDs, scoped to a data
// source. For membership edges A is the user, B the department; for
// leadership edges A is the user, B the leader.
type Edge struct {
	A int64
	B int64
}

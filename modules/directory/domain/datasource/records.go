package datasource

import "context"

// RawDepartment is one department row as produced by a fetcher. Code must be
// stable across fetches; ParentCode empty means root.
type RawDepartment struct {
	Code       string
	Name       string
	ParentCode string
	Extras     map[string]string
}

// RawUser is one user row as produced by a fetcher.
type RawUser struct {
	Code            string
	Username        string
	DisplayName     string
	Email           string
	Phone           string
	DepartmentCodes []string
	LeaderCodes     []string
	Extras          map[string]string
}

// Fetcher pulls the full current state of an external identity source. The
// engine is agnostic to how the records were obtained; a fetch failure is
// fatal for the run before any internal write.
type Fetcher interface {
	Fetch(ctx context.Context) ([]RawDepartment, []RawUser, error)
}

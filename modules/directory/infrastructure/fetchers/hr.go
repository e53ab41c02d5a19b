package fetchers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	gerrors "github.com/go-faster/errors"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
)

// HRFetcher pulls the directory snapshot from an HR system over HTTP.
// The endpoint returns a single JSON document with both object lists.
type HRFetcher struct {
	settings datasource.HRSettings
	client   *http.Client
}

func NewHRFetcher(settings datasource.HRSettings) *HRFetcher {
	return &HRFetcher{
		settings: settings,
		client:   http.DefaultClient,
	}
}

type hrSnapshot struct {
	Departments []hrDepartment `json:"departments"`
	Users       []hrUser       `json:"users"`
}

type hrDepartment struct {
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	ParentCode string            `json:"parent_code"`
	Extras     map[string]string `json:"extras"`
}

type hrUser struct {
	Code            string            `json:"code"`
	Username        string            `json:"username"`
	DisplayName     string            `json:"display_name"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone"`
	DepartmentCodes []string          `json:"department_codes"`
	LeaderCodes     []string          `json:"leader_codes"`
	Extras          map[string]string `json:"extras"`
}

func (f *HRFetcher) Fetch(ctx context.Context) ([]datasource.RawDepartment, []datasource.RawUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.settings.Endpoint, nil)
	if err != nil {
		return nil, nil, gerrors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if f.settings.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.settings.Token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, gerrors.Wrap(err, "call hr endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("hr endpoint returned %s", resp.Status)
	}

	var snapshot hrSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, nil, gerrors.Wrap(err, "decode hr response")
	}

	departments := make([]datasource.RawDepartment, 0, len(snapshot.Departments))
	for _, d := range snapshot.Departments {
		departments = append(departments, datasource.RawDepartment{
			Code:       d.Code,
			Name:       d.Name,
			ParentCode: d.ParentCode,
			Extras:     d.Extras,
		})
	}
	users := make([]datasource.RawUser, 0, len(snapshot.Users))
	for _, u := range snapshot.Users {
		users = append(users, datasource.RawUser{
			Code:            u.Code,
			Username:        u.Username,
			DisplayName:     u.DisplayName,
			Email:           u.Email,
			Phone:           u.Phone,
			DepartmentCodes: u.DepartmentCodes,
			LeaderCodes:     u.LeaderCodes,
			Extras:          u.Extras,
		})
	}
	return departments, users, nil
}

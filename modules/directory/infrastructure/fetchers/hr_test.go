package fetchers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
)

func TestHRFetcher_Fetch(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"departments": [
				{"code": "d1", "name": "Engineering", "parent_code": ""},
				{"code": "d2", "name": "Backend", "parent_code": "d1"}
			],
			"users": [
				{
					"code": "u1",
					"username": "alice",
					"display_name": "Alice",
					"email": "alice@corp.example",
					"department_codes": ["d1"],
					"leader_codes": []
				}
			]
		}`))
	}))
	defer srv.Close()

	fetcher := NewHRFetcher(datasource.HRSettings{Endpoint: srv.URL, Token: "secret"})
	departments, users, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)

	require.Equal(t, "Bearer secret", gotAuth)
	require.Len(t, departments, 2)
	require.Equal(t, "d1", departments[0].Code)
	require.Equal(t, "d1", departments[1].ParentCode)
	require.Len(t, users, 1)
	require.Equal(t, []string{"d1"}, users[0].DepartmentCodes)
}

func TestHRFetcher_Non200Fails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	fetcher := NewHRFetcher(datasource.HRSettings{Endpoint: srv.URL})
	_, _, err := fetcher.Fetch(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

package fetchers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/go-ldap/ldap/v3"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
)

const ldapPageSize = 500

// LDAPFetcher pulls departments (organizational units) and users from an
// LDAP/AD directory. Sources without a stable entry ID get a deterministic
// code derived from the distinguished name.
type LDAPFetcher struct {
	settings datasource.LDAPSettings
	log      *logrus.Logger
}

func NewLDAPFetcher(settings datasource.LDAPSettings, log *logrus.Logger) *LDAPFetcher {
	return &LDAPFetcher{settings: settings, log: log}
}

func (f *LDAPFetcher) Fetch(ctx context.Context) ([]datasource.RawDepartment, []datasource.RawUser, error) {
	conn, err := ldap.DialURL(f.settings.URL)
	if err != nil {
		return nil, nil, gerrors.Wrap(err, "ldap dial")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetTimeout(time.Until(deadline))
	}

	if err := conn.Bind(f.settings.BindDN, f.settings.BindPassword); err != nil {
		return nil, nil, gerrors.Wrap(err, "ldap bind")
	}

	departments, codeByDN, err := f.fetchDepartments(conn)
	if err != nil {
		return nil, nil, err
	}
	users, err := f.fetchUsers(conn, codeByDN)
	if err != nil {
		return nil, nil, err
	}
	return departments, users, nil
}

func (f *LDAPFetcher) fetchDepartments(conn *ldap.Conn) ([]datasource.RawDepartment, map[string]string, error) {
	filter := f.settings.DeptFilter
	if filter == "" {
		filter = "(objectClass=organizationalUnit)"
	}

	res, err := conn.SearchWithPaging(ldap.NewSearchRequest(
		f.settings.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{"ou"},
		nil,
	), ldapPageSize)
	if err != nil {
		return nil, nil, gerrors.Wrap(err, "ldap department search")
	}

	codeByDN := make(map[string]string, len(res.Entries))
	for _, e := range res.Entries {
		codeByDN[normalizeDN(e.DN)] = dnCode(e.DN)
	}

	departments := make([]datasource.RawDepartment, 0, len(res.Entries))
	for _, e := range res.Entries {
		dept := datasource.RawDepartment{
			Code: dnCode(e.DN),
			Name: e.GetAttributeValue("ou"),
		}
		if parent, ok := codeByDN[parentDN(e.DN)]; ok {
			dept.ParentCode = parent
		}
		departments = append(departments, dept)
	}
	return departments, codeByDN, nil
}

func (f *LDAPFetcher) fetchUsers(conn *ldap.Conn, deptCodeByDN map[string]string) ([]datasource.RawUser, error) {
	filter := f.settings.UserFilter
	if filter == "" {
		filter = "(objectClass=inetOrgPerson)"
	}

	attrs := []string{
		f.usernameAttr(), f.displayAttr(), f.emailAttr(), f.phoneAttr(), f.leaderAttr(),
	}
	if f.settings.UserIDAttr != "" {
		attrs = append(attrs, f.settings.UserIDAttr)
	}

	res, err := conn.SearchWithPaging(ldap.NewSearchRequest(
		f.settings.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		attrs,
		nil,
	), ldapPageSize)
	if err != nil {
		return nil, gerrors.Wrap(err, "ldap user search")
	}

	// Codes are resolved in two passes so manager DNs can point at users
	// fetched later in the result set.
	codeByDN := make(map[string]string, len(res.Entries))
	for _, e := range res.Entries {
		codeByDN[normalizeDN(e.DN)] = f.userCode(e)
	}

	users := make([]datasource.RawUser, 0, len(res.Entries))
	for _, e := range res.Entries {
		u := datasource.RawUser{
			Code:        f.userCode(e),
			Username:    e.GetAttributeValue(f.usernameAttr()),
			DisplayName: e.GetAttributeValue(f.displayAttr()),
			Email:       e.GetAttributeValue(f.emailAttr()),
			Phone:       e.GetAttributeValue(f.phoneAttr()),
		}
		if dept, ok := deptCodeByDN[parentDN(e.DN)]; ok {
			u.DepartmentCodes = []string{dept}
		}
		for _, managerDN := range e.GetAttributeValues(f.leaderAttr()) {
			leader, ok := codeByDN[normalizeDN(managerDN)]
			if !ok {
				// Unresolvable manager: hand a deterministic code through and
				// let the relation syncer drop it as dangling.
				leader = dnCode(managerDN)
			}
			u.LeaderCodes = append(u.LeaderCodes, leader)
		}
		users = append(users, u)
	}
	return users, nil
}

func (f *LDAPFetcher) userCode(e *ldap.Entry) string {
	if f.settings.UserIDAttr != "" {
		if v := e.GetAttributeValue(f.settings.UserIDAttr); v != "" {
			return v
		}
	}
	return dnCode(e.DN)
}

func (f *LDAPFetcher) usernameAttr() string { return attrOr(f.settings.UsernameAttr, "uid") }
func (f *LDAPFetcher) displayAttr() string  { return attrOr(f.settings.DisplayAttr, "cn") }
func (f *LDAPFetcher) emailAttr() string    { return attrOr(f.settings.EmailAttr, "mail") }
func (f *LDAPFetcher) phoneAttr() string    { return attrOr(f.settings.PhoneAttr, "telephoneNumber") }
func (f *LDAPFetcher) leaderAttr() string   { return attrOr(f.settings.LeaderAttr, "manager") }

func attrOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// dnCode derives a stable code from a distinguished name.
func dnCode(dn string) string {
	sum := sha256.Sum256([]byte(normalizeDN(dn)))
	return hex.EncodeToString(sum[:])
}

func normalizeDN(dn string) string {
	parts := strings.Split(dn, ",")
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, ",")
}

func parentDN(dn string) string {
	parts := strings.SplitN(dn, ",", 2)
	if len(parts) < 2 {
		return ""
	}
	return normalizeDN(parts[1])
}

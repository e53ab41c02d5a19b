package datasource

// Settings holds the per-source fetcher configuration, persisted as JSONB on
// the data source row. Exactly one section is populated, matching Type.
type Settings struct {
	LDAP  *LDAPSettings  `json:"ldap,omitempty"`
	Excel *ExcelSettings `json:"excel,omitempty"`
	HR    *HRSettings    `json:"hr,omitempty"`
}

type LDAPSettings struct {
	URL          string `json:"url"`
	BindDN       string `json:"bind_dn"`
	BindPassword string `json:"bind_password"`
	BaseDN       string `json:"base_dn"`
	UserFilter   string `json:"user_filter"`
	DeptFilter   string `json:"dept_filter"`
	// Attribute names; empty values fall back to common AD defaults.
	UserIDAttr   string `json:"user_id_attr"`
	UsernameAttr string `json:"username_attr"`
	DisplayAttr  string `json:"display_attr"`
	EmailAttr    string `json:"email_attr"`
	PhoneAttr    string `json:"phone_attr"`
	LeaderAttr   string `json:"leader_attr"`
}

type ExcelSettings struct {
	Path string `json:"path"`
	// Sheet names; empty values fall back to the first two sheets.
	DepartmentSheet string `json:"department_sheet"`
	UserSheet       string `json:"user_sheet"`
}

type HRSettings struct {
	Endpoint string `json:"endpoint"`
	Token    string `json:"token"`
}

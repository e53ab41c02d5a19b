package fetchers

import (
	"context"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
)

// ExcelFetcher parses an uploaded workbook. The department sheet carries
// (code, name, parent_code) columns, the user sheet (code, username,
// display_name, email, phone, department_codes, leader_codes) with multiple
// codes separated by commas or semicolons. The first row is a header.
type ExcelFetcher struct {
	settings datasource.ExcelSettings
}

func NewExcelFetcher(settings datasource.ExcelSettings) *ExcelFetcher {
	return &ExcelFetcher{settings: settings}
}

func (f *ExcelFetcher) Fetch(ctx context.Context) ([]datasource.RawDepartment, []datasource.RawUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	wb, err := excelize.OpenFile(f.settings.Path)
	if err != nil {
		return nil, nil, gerrors.Wrap(err, "open workbook")
	}
	defer wb.Close()

	deptSheet, userSheet, err := f.sheets(wb)
	if err != nil {
		return nil, nil, err
	}

	departments, err := f.readDepartments(wb, deptSheet)
	if err != nil {
		return nil, nil, err
	}
	users, err := f.readUsers(wb, userSheet)
	if err != nil {
		return nil, nil, err
	}
	return departments, users, nil
}

func (f *ExcelFetcher) sheets(wb *excelize.File) (string, string, error) {
	deptSheet := f.settings.DepartmentSheet
	userSheet := f.settings.UserSheet
	if deptSheet != "" && userSheet != "" {
		return deptSheet, userSheet, nil
	}

	names := wb.GetSheetList()
	if len(names) < 2 {
		return "", "", gerrors.New("workbook needs a department sheet and a user sheet")
	}
	if deptSheet == "" {
		deptSheet = names[0]
	}
	if userSheet == "" {
		userSheet = names[1]
	}
	return deptSheet, userSheet, nil
}

func (f *ExcelFetcher) readDepartments(wb *excelize.File, sheet string) ([]datasource.RawDepartment, error) {
	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, gerrors.Wrap(err, "read department sheet")
	}

	var out []datasource.RawDepartment
	for i, row := range rows {
		if i == 0 {
			continue
		}
		code := cell(row, 0)
		if code == "" {
			continue
		}
		out = append(out, datasource.RawDepartment{
			Code:       code,
			Name:       cell(row, 1),
			ParentCode: cell(row, 2),
		})
	}
	return out, nil
}

func (f *ExcelFetcher) readUsers(wb *excelize.File, sheet string) ([]datasource.RawUser, error) {
	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, gerrors.Wrap(err, "read user sheet")
	}

	var out []datasource.RawUser
	for i, row := range rows {
		if i == 0 {
			continue
		}
		code := cell(row, 0)
		if code == "" {
			continue
		}
		out = append(out, datasource.RawUser{
			Code:            code,
			Username:        cell(row, 1),
			DisplayName:     cell(row, 2),
			Email:           cell(row, 3),
			Phone:           cell(row, 4),
			DepartmentCodes: splitCodes(cell(row, 5)),
			LeaderCodes:     splitCodes(cell(row, 6)),
		})
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func splitCodes(v string) []string {
	if v == "" {
		return nil
	}
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, fld := range fields {
		if fld = strings.TrimSpace(fld); fld != "" {
			out = append(out, fld)
		}
	}
	return out
}

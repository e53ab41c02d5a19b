package fetchers

import (
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
	"github.com/iota-uz/dirsync/modules/directory/services"
	"github.com/iota-uz/dirsync/pkg/serrors"
)

var ErrNoFetcher = serrors.NewError(
	"SYNC_NO_FETCHER",
	"no fetcher exists for this data source type",
	"",
)

// Factory selects a fetcher by the data source type tag.
type Factory struct {
	log *logrus.Logger
}

var _ services.FetcherFactory = (*Factory)(nil)

func NewFactory(log *logrus.Logger) *Factory {
	return &Factory{log: log}
}

func (f *Factory) ForDataSource(ds datasource.DataSource) (datasource.Fetcher, error) {
	settings := ds.Settings()
	switch ds.Type() {
	case datasource.TypeLDAP:
		if settings.LDAP == nil {
			return nil, ErrNoFetcher.WithCause(errMissingSettings("ldap"))
		}
		return NewLDAPFetcher(*settings.LDAP, f.log), nil
	case datasource.TypeExcel:
		if settings.Excel == nil {
			return nil, ErrNoFetcher.WithCause(errMissingSettings("excel"))
		}
		return NewExcelFetcher(*settings.Excel), nil
	case datasource.TypeHR:
		if settings.HR == nil {
			return nil, ErrNoFetcher.WithCause(errMissingSettings("hr"))
		}
		return NewHRFetcher(*settings.HR), nil
	default:
		return nil, ErrNoFetcher
	}
}

type errMissingSettings string

func (e errMissingSettings) Error() string {
	return "data source has no " + string(e) + " settings"
}

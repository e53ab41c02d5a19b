package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
	"github.com/iota-uz/dirsync/modules/directory/domain/entity"
	"github.com/iota-uz/dirsync/modules/directory/domain/synctask"
	"github.com/iota-uz/dirsync/pkg/composables"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,31}$`)

type rawUserValidation struct {
	Code        string `validate:"required"`
	DisplayName string `validate:"max=128"`
	Email       string `validate:"omitempty,email"`
	Phone       string `validate:"omitempty,max=32"`
}

// UserSyncer applies one raw user batch: field-level diff and bulk writes,
// no relation handling. Malformed rows are skipped and reported, never fatal.
type UserSyncer struct {
	users    UserRepository
	validate *validator.Validate
	log      *logrus.Logger
}

func NewUserSyncer(users UserRepository, log *logrus.Logger) *UserSyncer {
	return &UserSyncer{
		users:    users,
		validate: validator.New(),
		log:      log,
	}
}

// CreatedUser pairs a created row with its generated initial password, so the
// orchestrator can emit a credential event for the notification sink.
type CreatedUser struct {
	User        entity.User
	RawPassword string
}

type UserSyncResult struct {
	Created   []CreatedUser
	Updated   int
	Deleted   int
	Unchanged int
	Skipped   []synctask.RowError
	// IDByCode maps every surviving user code to its internal ID.
	IDByCode map[string]int64
	// NewIDs marks users created by this run; append-mode edge sync only adds
	// edges touching these.
	NewIDs map[int64]bool
	// BatchCodes holds the codes of valid rows in this batch, used by the
	// relation syncer to tell touched users from untouched ones.
	BatchCodes map[string]bool
}

func (s *UserSyncer) Sync(ctx context.Context, ds datasource.DataSource, raw []datasource.RawUser) (UserSyncResult, error) {
	engine, err := NewDiffEngine(
		ds.Mode(), ds.Policy(),
		func(u entity.User) string { return u.Code },
		func(existing, incoming entity.User) bool {
			return existing.FieldsEqual(incoming, ds.UsernameFrozen())
		},
	)
	if err != nil {
		return UserSyncResult{}, err
	}

	incoming, skipped := s.validateBatch(ds, raw)

	res, err := composables.InTxResult(ctx, func(txCtx context.Context) (UserSyncResult, error) {
		return s.syncInTx(txCtx, ds, incoming, engine)
	})
	if err != nil {
		return UserSyncResult{}, err
	}
	res.Skipped = skipped
	return res, nil
}

func (s *UserSyncer) validateBatch(ds datasource.DataSource, raw []datasource.RawUser) ([]entity.User, []synctask.RowError) {
	incoming := make([]entity.User, 0, len(raw))
	var skipped []synctask.RowError

	for _, r := range raw {
		row := entity.User{
			DataSourceID: ds.ID(),
			Code:         strings.TrimSpace(r.Code),
			Username:     strings.TrimSpace(r.Username),
			DisplayName:  strings.TrimSpace(r.DisplayName),
			Email:        strings.TrimSpace(r.Email),
			Phone:        strings.TrimSpace(r.Phone),
			Extras:       r.Extras,
		}

		reason := ""
		if !usernameRe.MatchString(row.Username) {
			reason = "unparseable username"
		} else if err := s.validate.Struct(rawUserValidation{
			Code:        row.Code,
			DisplayName: row.DisplayName,
			Email:       row.Email,
			Phone:       row.Phone,
		}); err != nil {
			reason = err.Error()
		}

		if reason != "" {
			s.log.WithFields(logrus.Fields{
				"data_source_id": ds.ID(),
				"code":           r.Code,
				"reason":         reason,
			}).Warn("skipping malformed user record")
			skipped = append(skipped, synctask.RowError{
				ObjectType: synctask.ObjectUser,
				Code:       r.Code,
				Reason:     reason,
			})
			continue
		}
		incoming = append(incoming, row)
	}
	return incoming, skipped
}

func (s *UserSyncer) syncInTx(ctx context.Context, ds datasource.DataSource, incoming []entity.User, engine *DiffEngine[entity.User]) (UserSyncResult, error) {
	existing, err := s.users.ListByDataSource(ctx, ds.ID())
	if err != nil {
		return UserSyncResult{}, err
	}

	diff, err := engine.Diff(existing, incoming)
	if err != nil {
		return UserSyncResult{}, err
	}

	res := UserSyncResult{
		Unchanged:  diff.Unchanged,
		IDByCode:   make(map[string]int64),
		NewIDs:     make(map[int64]bool),
		BatchCodes: make(map[string]bool, len(incoming)),
	}
	for _, u := range incoming {
		res.BatchCodes[u.Code] = true
	}

	surviving := make(map[string]int64, len(existing))
	for _, u := range existing {
		surviving[u.Code] = u.ID
	}

	if len(diff.ToDelete) > 0 {
		n, err := s.users.BulkDeleteByCodes(ctx, ds.ID(), diff.ToDelete)
		if err != nil {
			return UserSyncResult{}, mapPgError(err)
		}
		res.Deleted = int(n)
		for _, code := range diff.ToDelete {
			delete(surviving, code)
		}
	}

	if len(diff.ToUpdate) > 0 {
		updates := make([]entity.User, 0, len(diff.ToUpdate))
		for _, pair := range diff.ToUpdate {
			row := pair.Incoming
			row.ID = pair.Existing.ID
			updates = append(updates, row)
		}
		if err := s.users.BulkUpdate(ctx, updates, !ds.UsernameFrozen()); err != nil {
			return UserSyncResult{}, mapPgError(err)
		}
		res.Updated = len(updates)
	}

	if len(diff.ToCreate) > 0 {
		passwords := make(map[string]string, len(diff.ToCreate))
		rows := make([]entity.User, 0, len(diff.ToCreate))
		for _, row := range diff.ToCreate {
			raw, hash, err := generatePassword()
			if err != nil {
				return UserSyncResult{}, err
			}
			passwords[row.Code] = raw
			row.PasswordHash = hash
			rows = append(rows, row)
		}
		created, err := s.users.BulkCreate(ctx, rows)
		if err != nil {
			return UserSyncResult{}, mapPgError(err)
		}
		for _, u := range created {
			surviving[u.Code] = u.ID
			res.NewIDs[u.ID] = true
			res.Created = append(res.Created, CreatedUser{User: u, RawPassword: passwords[u.Code]})
		}
	}

	res.IDByCode = surviving
	return res, nil
}

const passwordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generatePassword() (raw string, hash string, err error) {
	buf := make([]byte, 12)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordAlphabet))))
		if err != nil {
			return "", "", err
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}
	h, err := bcrypt.GenerateFromPassword(buf, bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return string(buf), string(h), nil
}

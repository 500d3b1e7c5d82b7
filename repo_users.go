package identity

import (
	"context"
	"net/mail"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users exposes user persistence scoped to one tenant.
type Users interface {
	repository.Repository[*User]

	GetByUsername(ctx context.Context, identifier string) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, identifier string) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db     *bun.DB
	tenant Tenant
}

var _ Users = (*users)(nil)

// NewUsersRepository creates a tenant-scoped Users repository.
func NewUsersRepository(db *bun.DB, tenant Tenant) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
		tenant:     tenant,
	}
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	a.prepareDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

// GetByUsername resolves a login identifier against id, email, or display
// name, in that order, within the repository tenant.
func (a *users) GetByUsername(ctx context.Context, identifier string) (*User, error) {
	return a.GetByUsernameTx(ctx, a.db, identifier)
}

func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, identifier string) (*User, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil, repository.NewRecordNotFound()
	}

	columns := make([]string, 0, 3)
	if _, err := uuid.Parse(trimmed); err == nil {
		columns = append(columns, "id")
	}
	if _, err := mail.ParseAddress(trimmed); err == nil {
		columns = append(columns, "email")
	}
	columns = append(columns, "display_name")

	for _, column := range columns {
		record := &User{}
		err := tx.NewSelect().Model(record).
			Where("?TableAlias."+column+" = ?", trimmed).
			Where("?TableAlias.platform_id = ?", a.tenant.PlatformID).
			Where("?TableAlias.env = ?", a.tenant.Env).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) || isNoRows(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) prepareDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.PlatformID == "" {
		record.PlatformID = a.tenant.PlatformID
	}
	if record.Env == "" {
		record.Env = a.tenant.Env
	}
}

package identity

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuthMeans exposes credential-binding persistence scoped to one tenant.
type AuthMeans interface {
	repository.Repository[*AuthMean]

	GetLocal(ctx context.Context, userID uuid.UUID) (*AuthMean, error)
	GetLocalTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*AuthMean, error)
	GetBySubject(ctx context.Context, provider, identifier string) (*AuthMean, error)
	GetBySubjectTx(ctx context.Context, tx bun.IDB, provider, identifier string) (*AuthMean, error)
	SetProviderTokens(ctx context.Context, id uuid.UUID, tokens map[string]any) error
}

type authMeans struct {
	repository.Repository[*AuthMean]
	db     *bun.DB
	tenant Tenant
}

var _ AuthMeans = (*authMeans)(nil)

// NewAuthMeansRepository creates a tenant-scoped AuthMeans repository.
func NewAuthMeansRepository(db *bun.DB, tenant Tenant) AuthMeans {
	repo := repository.NewRepository[*AuthMean](db, repository.ModelHandlers[*AuthMean]{
		NewRecord: func() *AuthMean { return &AuthMean{} },
		GetID: func(m *AuthMean) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *AuthMean, id uuid.UUID) {
			if m != nil {
				m.ID = id
			}
		},
		GetIdentifier: func() string {
			return "identifier"
		},
	})

	return &authMeans{
		Repository: repo,
		db:         db,
		tenant:     tenant,
	}
}

func (a *authMeans) Create(ctx context.Context, record *AuthMean, criteria ...repository.InsertCriteria) (*AuthMean, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *authMeans) CreateTx(ctx context.Context, tx bun.IDB, record *AuthMean, criteria ...repository.InsertCriteria) (*AuthMean, error) {
	if record != nil {
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
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

// GetLocal returns the `_local_` password binding for a user.
func (a *authMeans) GetLocal(ctx context.Context, userID uuid.UUID) (*AuthMean, error) {
	return a.GetLocalTx(ctx, a.db, userID)
}

func (a *authMeans) GetLocalTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*AuthMean, error) {
	record := &AuthMean{}
	err := a.scope(tx.NewSelect().Model(record)).
		Where("?TableAlias.provider = ?", ProviderLocal).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetBySubject returns the binding for an external provider subject id.
func (a *authMeans) GetBySubject(ctx context.Context, provider, identifier string) (*AuthMean, error) {
	return a.GetBySubjectTx(ctx, a.db, provider, identifier)
}

func (a *authMeans) GetBySubjectTx(ctx context.Context, tx bun.IDB, provider, identifier string) (*AuthMean, error) {
	record := &AuthMean{}
	err := a.scope(tx.NewSelect().Model(record)).
		Where("?TableAlias.provider = ?", provider).
		Where("?TableAlias.identifier = ?", identifier).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// SetProviderTokens stores the provider's last token set on the binding.
func (a *authMeans) SetProviderTokens(ctx context.Context, id uuid.UUID, tokens map[string]any) error {
	record := &AuthMean{ID: id, Tokens: tokens}
	_, err := a.Repository.Update(ctx, record, repository.UpdateByID(id.String()))
	return err
}

func (a *authMeans) scope(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		Where("?TableAlias.platform_id = ?", a.tenant.PlatformID).
		Where("?TableAlias.env = ?", a.tenant.Env)
}

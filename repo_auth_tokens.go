package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuthTokens exposes ephemeral-token persistence scoped to one tenant. The
// consume and mark primitives are single statements so two concurrent
// redemption attempts resolve to exactly one winner.
type AuthTokens interface {
	repository.Repository[*AuthToken]

	GetByTypeAndValue(ctx context.Context, typ TokenType, value string) (*AuthToken, error)
	// ConsumeByTypeAndValue atomically deletes the matching token and
	// returns it. A nil result means some other consumer got there first
	// or the token never existed.
	ConsumeByTypeAndValue(ctx context.Context, typ TokenType, value string) (*AuthToken, error)
	// MarkChecked flips the checked flag exactly once. It reports whether
	// this call was the one that flipped it.
	MarkChecked(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	DeleteByTokenID(ctx context.Context, id uuid.UUID) error
}

type authTokens struct {
	repository.Repository[*AuthToken]
	db     *bun.DB
	tenant Tenant
}

var _ AuthTokens = (*authTokens)(nil)

// NewAuthTokensRepository creates a tenant-scoped AuthTokens repository.
func NewAuthTokensRepository(db *bun.DB, tenant Tenant) AuthTokens {
	repo := repository.NewRepository[*AuthToken](db, repository.ModelHandlers[*AuthToken]{
		NewRecord: func() *AuthToken { return &AuthToken{} },
		GetID: func(t *AuthToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *AuthToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "value"
		},
	})

	return &authTokens{
		Repository: repo,
		db:         db,
		tenant:     tenant,
	}
}

func (a *authTokens) Create(ctx context.Context, record *AuthToken, criteria ...repository.InsertCriteria) (*AuthToken, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *authTokens) CreateTx(ctx context.Context, tx bun.IDB, record *AuthToken, criteria ...repository.InsertCriteria) (*AuthToken, error) {
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

func (a *authTokens) GetByTypeAndValue(ctx context.Context, typ TokenType, value string) (*AuthToken, error) {
	record := &AuthToken{}
	err := a.db.NewSelect().Model(record).
		Where("?TableAlias.type = ?", typ).
		Where("?TableAlias.value = ?", value).
		Where("?TableAlias.platform_id = ?", a.tenant.PlatformID).
		Where("?TableAlias.env = ?", a.tenant.Env).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

var consumeAuthTokenSQL = `DELETE FROM "auth_tokens"
WHERE
	"type" = ?
AND "value" = ?
AND "platform_id" = ?
AND "env" = ?
RETURNING *;`

func (a *authTokens) ConsumeByTypeAndValue(ctx context.Context, typ TokenType, value string) (*AuthToken, error) {
	res, err := a.Repository.Raw(ctx, consumeAuthTokenSQL, typ, value, a.tenant.PlatformID, a.tenant.Env)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, nil
	}

	return res[0], nil
}

var markCheckedSQL = `UPDATE "auth_tokens"
SET "checked" = TRUE
WHERE
	"id" = ?
AND "checked" = FALSE
RETURNING *;`

func (a *authTokens) MarkChecked(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := a.Repository.Raw(ctx, markCheckedSQL, id.String())
	if err != nil {
		return false, err
	}

	return len(res) > 0, nil
}

func (a *authTokens) DeleteByTokenID(ctx context.Context, id uuid.UUID) error {
	_, err := a.db.NewDelete().Model((*AuthToken)(nil)).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.platform_id = ?", a.tenant.PlatformID).
		Where("?TableAlias.env = ?", a.tenant.Env).
		Exec(ctx)
	return err
}

func (a *authTokens) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := a.db.NewDelete().Model((*AuthToken)(nil)).
		Where("?TableAlias.expires_at < ?", before).
		Where("?TableAlias.platform_id = ?", a.tenant.PlatformID).
		Where("?TableAlias.env = ?", a.tenant.Env).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	n, _ := res.RowsAffected()
	return n, nil
}

package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories for one tenant.
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Tenant() Tenant
	Users() Users
	AuthMeans() AuthMeans
	AuthTokens() AuthTokens
	Secrets() SecretStore
}

type mngr struct {
	db         *bun.DB
	tenant     Tenant
	users      Users
	authMeans  AuthMeans
	authTokens AuthTokens
	secrets    SecretStore
}

// NewRepositoryManager wires the tenant-scoped repositories over one bun.DB.
func NewRepositoryManager(db *bun.DB, tenant Tenant) RepositoryManager {
	return &mngr{
		db:         db,
		tenant:     tenant,
		users:      NewUsersRepository(db, tenant),
		authMeans:  NewAuthMeansRepository(db, tenant),
		authTokens: NewAuthTokensRepository(db, tenant),
		secrets:    NewSecretRepository(db, tenant),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}
	if m.authMeans == nil {
		return errors.New("repository authMeans should be initialized")
	}
	if m.authTokens == nil {
		return errors.New("repository authTokens should be initialized")
	}
	if m.secrets == nil {
		return errors.New("repository secrets should be initialized")
	}
	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Tenant() Tenant         { return m.tenant }
func (m mngr) Users() Users           { return m.users }
func (m mngr) AuthMeans() AuthMeans   { return m.authMeans }
func (m mngr) AuthTokens() AuthTokens { return m.authTokens }
func (m mngr) Secrets() SecretStore   { return m.secrets }

// isNoRows matches the bare sql sentinel bun returns on empty selects.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// secretRepo persists per-tenant signing secrets with idempotent-upsert
// semantics: the first write wins and every later writer reads it back.
type secretRepo struct {
	db     *bun.DB
	tenant Tenant
}

// NewSecretRepository creates a SecretStore backed by the tenant_secrets table.
func NewSecretRepository(db *bun.DB, tenant Tenant) SecretStore {
	return &secretRepo{db: db, tenant: tenant}
}

func (r *secretRepo) Get(ctx context.Context) (string, error) {
	record := &TenantSecret{}
	err := r.db.NewSelect().Model(record).
		Where("?TableAlias.platform_id = ?", r.tenant.PlatformID).
		Where("?TableAlias.env = ?", r.tenant.Env).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return record.Secret, nil
}

func (r *secretRepo) SetIfAbsent(ctx context.Context, secret string) (string, error) {
	record := &TenantSecret{
		PlatformID: r.tenant.PlatformID,
		Env:        r.tenant.Env,
		Secret:     secret,
	}

	// ON CONFLICT DO NOTHING keeps the first stored value; losers read it back.
	if _, err := r.db.NewInsert().Model(record).Ignore().Exec(ctx); err != nil {
		return "", err
	}

	stored, err := r.Get(ctx)
	if err != nil {
		return "", err
	}
	if stored == "" {
		return secret, nil
	}
	return stored, nil
}

package identity

import (
	"context"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// ClaimMapping maps external claim names onto internal user attributes.
type ClaimMapping map[string]string

// Internal attribute targets a mapping may point at.
const (
	AttrExternalID  = "id"
	AttrEmail       = "email"
	AttrFirstName   = "firstname"
	AttrLastName    = "lastname"
	AttrDisplayName = "displayName"
	AttrPhone       = "phone"
)

// DefaultClaimMapping covers the standard OIDC profile claims.
func DefaultClaimMapping() ClaimMapping {
	return ClaimMapping{
		"sub":          AttrExternalID,
		"id":           AttrExternalID,
		"email":        AttrEmail,
		"given_name":   AttrFirstName,
		"family_name":  AttrLastName,
		"name":         AttrDisplayName,
		"phone_number": AttrPhone,
	}
}

// ResolveInput carries one provider identity into the resolver.
type ResolveInput struct {
	Provider       string
	Claims         map[string]any
	Mapping        ClaimMapping
	ProviderTokens map[string]any
}

// IdentityResolver maps external provider claims onto internal user records,
// creating a user on first login or merging claims into the existing one.
type IdentityResolver struct {
	repo     RepositoryManager
	config   Config
	activity ActivitySink
	logger   Logger
}

// NewIdentityResolver wires a resolver over the tenant repositories.
func NewIdentityResolver(repo RepositoryManager, cfg Config) *IdentityResolver {
	return &IdentityResolver{
		repo:     repo,
		config:   cfg,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit user events.
func (r *IdentityResolver) WithActivitySink(sink ActivitySink) *IdentityResolver {
	r.activity = normalizeActivitySink(sink)
	return r
}

// WithLogger overrides the logger.
func (r *IdentityResolver) WithLogger(logger Logger) *IdentityResolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// ResolveOrCreate returns the internal user for an external identity,
// creating user and credential binding together on first contact. The
// returned flag reports whether a new user was created.
func (r *IdentityResolver) ResolveOrCreate(ctx context.Context, in ResolveInput) (*User, bool, error) {
	mapping := in.Mapping
	if len(mapping) == 0 {
		mapping = DefaultClaimMapping()
	}

	attrs := mapClaims(in.Claims, mapping)
	externalID, _ := attrs[AttrExternalID].(string)
	if externalID == "" {
		return nil, false, errors.New("provider claims carry no subject id", errors.CategoryBadInput).
			WithMetadata(map[string]any{"provider": in.Provider})
	}

	mean, err := r.repo.AuthMeans().GetBySubject(ctx, in.Provider, externalID)
	if err != nil {
		if !repository.IsRecordNotFound(err) && !isNoRows(err) {
			return nil, false, errors.Wrap(err, errors.CategoryInternal, "failed to look up credential binding")
		}
		user, err := r.create(ctx, in, attrs, externalID)
		return user, true, err
	}

	user, err := r.merge(ctx, in, attrs, mean)
	return user, false, err
}

func (r *IdentityResolver) create(ctx context.Context, in ResolveInput, attrs map[string]any, externalID string) (*User, error) {
	user := &User{Roles: r.defaultRoles()}
	applyAttrs(user, attrs, false)
	user.RecordSSOProvider(in.Provider)

	if user.ID == uuid.Nil && user.Email != "" {
		if id, err := hashid.NewUUID(user.Email); err == nil {
			user.ID = id
		}
	}

	// user and binding must land together
	err := r.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := r.repo.Users().CreateTx(ctx, tx, user)
		if err != nil {
			return err
		}
		user = created

		_, err = r.repo.AuthMeans().CreateTx(ctx, tx, &AuthMean{
			Provider:   in.Provider,
			UserID:     user.ID,
			Identifier: externalID,
			Tokens:     in.ProviderTokens,
		})
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create user for external identity")
	}

	emitActivity(ctx, r.activity, r.logger, ActivityEvent{
		EventType: ActivityEventUserCreated,
		Actor:     ActorRef{ID: in.Provider, Type: "sso"},
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"provider": in.Provider,
			"email":    user.Email,
		},
	})

	return user, nil
}

func (r *IdentityResolver) merge(ctx context.Context, in ResolveInput, attrs map[string]any, mean *AuthMean) (*User, error) {
	user, err := r.repo.Users().GetByID(ctx, mean.UserID.String())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user for credential binding")
	}

	changed := applyAttrs(user, attrs, true)
	if user.RecordSSOProvider(in.Provider) {
		changed = true
	}

	if changed {
		if _, err := r.repo.Users().Update(ctx, user, repository.UpdateByID(user.ID.String())); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to merge external claims")
		}

		emitActivity(ctx, r.activity, r.logger, ActivityEvent{
			EventType: ActivityEventUserUpdated,
			Actor:     ActorRef{ID: in.Provider, Type: "sso"},
			UserID:    user.ID.String(),
			Metadata: map[string]any{
				"provider": in.Provider,
			},
		})
	}

	if len(in.ProviderTokens) > 0 {
		if err := r.repo.AuthMeans().SetProviderTokens(ctx, mean.ID, in.ProviderTokens); err != nil {
			r.logger.Warn("failed to store provider tokens: %v", err)
		}
	}

	return user, nil
}

func (r *IdentityResolver) defaultRoles() []string {
	if r.config == nil {
		return nil
	}
	return append([]string(nil), r.config.GetDefaultRoles()...)
}

// mapClaims projects external claims through the mapping. Unmapped targets
// keep the claim under its own name for platformData.
func mapClaims(claims map[string]any, mapping ClaimMapping) map[string]any {
	out := map[string]any{}
	for claim, attr := range mapping {
		value, ok := claims[claim]
		if !ok || value == nil {
			continue
		}
		// sub wins over id when both map to the external subject
		if attr == AttrExternalID {
			if _, taken := out[AttrExternalID]; taken && claim != "sub" {
				continue
			}
		}
		out[attr] = normalizeAttr(attr, value)
	}
	return out
}

func normalizeAttr(attr string, value any) any {
	if attr != AttrPhone {
		return value
	}

	raw, ok := value.(string)
	if !ok {
		return value
	}

	num, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// applyAttrs writes mapped attributes onto the user. With onlyMissing set it
// never overwrites a field the user already has; map values are deep merged
// into platformData. It reports whether anything changed.
func applyAttrs(user *User, attrs map[string]any, onlyMissing bool) bool {
	changed := false

	setString := func(dst *string, val any) {
		s, ok := val.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return
		}
		if onlyMissing && *dst != "" {
			return
		}
		if *dst != s {
			*dst = s
			changed = true
		}
	}

	for attr, value := range attrs {
		switch attr {
		case AttrExternalID:
			// the subject id lives on the AuthMean, never on the user
		case AttrEmail:
			setString(&user.Email, value)
		case AttrFirstName:
			setString(&user.FirstName, value)
		case AttrLastName:
			setString(&user.LastName, value)
		case AttrDisplayName:
			setString(&user.DisplayName, value)
		case AttrPhone:
			setString(&user.Phone, value)
		default:
			if user.PlatformData == nil {
				user.PlatformData = map[string]any{}
			}
			if mergePlatformValue(user.PlatformData, attr, value, onlyMissing) {
				changed = true
			}
		}
	}

	return changed
}

func mergePlatformValue(data map[string]any, key string, value any, onlyMissing bool) bool {
	current, exists := data[key]
	if !exists {
		data[key] = value
		return true
	}

	currentMap, currentIsMap := current.(map[string]any)
	valueMap, valueIsMap := value.(map[string]any)
	if currentIsMap && valueIsMap {
		changed := false
		for k, v := range valueMap {
			if mergePlatformValue(currentMap, k, v, onlyMissing) {
				changed = true
			}
		}
		return changed
	}

	if onlyMissing {
		return false
	}

	data[key] = value
	return true
}

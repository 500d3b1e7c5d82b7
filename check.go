package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultCheckTokenTTL bounds how long a verification link stays valid when
// the caller supplies no ttl.
const DefaultCheckTokenTTL = 24 * time.Hour

// CheckStatus is the outcome of confirming a verification token.
type CheckStatus string

const (
	CheckValid          CheckStatus = "valid"
	CheckAlreadyChecked CheckStatus = "alreadyChecked"
	CheckExpired        CheckStatus = "expired"
	CheckInvalid        CheckStatus = "invalid"
)

// CheckResult reports a confirmation outcome. RedirectURL is populated when
// the token was issued with one, so callers can forward the client.
type CheckResult struct {
	Status      CheckStatus `json:"status"`
	RedirectURL string      `json:"redirectUrl,omitempty"`
	Token       *AuthToken  `json:"-"`
}

// IssueCheckToken creates a verification token (email confirmation, magic
// link, device check). The reference payload travels back to the caller on
// confirmation; a redirectUrl key is surfaced in the result.
func (o *SessionOrchestrator) IssueCheckToken(ctx context.Context, userID *uuid.UUID, reference map[string]any, ttl time.Duration) (*AuthToken, error) {
	if ttl <= 0 {
		ttl = DefaultCheckTokenTTL
	}

	token, err := o.tokens.Issue(ctx, TokenCheck, userID, reference, ttl)
	if err != nil {
		return nil, err
	}

	event := ActivityEvent{
		EventType: ActivityEventCheckRequested,
		Metadata: map[string]any{
			"token": token.Value,
		},
	}
	if userID != nil {
		event.Actor = ActorRef{ID: userID.String(), Type: "user"}
		event.UserID = userID.String()
	}
	emitActivity(ctx, o.activity, o.logger, event)

	return token, nil
}

// ConfirmCheckToken resolves a verification token to a status. Confirming
// is idempotent: the first call flips the token and fires the confirmation
// event, later calls report alreadyChecked without side effects. Unknown
// and expired values are statuses, not errors.
func (o *SessionOrchestrator) ConfirmCheckToken(ctx context.Context, value string) (*CheckResult, error) {
	token, consumed, err := o.tokens.Check(ctx, value)
	if err != nil {
		switch {
		case IsTextCode(err, TextCodeTokenNotFound):
			return &CheckResult{Status: CheckInvalid}, nil
		case IsTextCode(err, TextCodeTokenExpired):
			return &CheckResult{Status: CheckExpired}, nil
		}
		return nil, err
	}

	result := &CheckResult{
		Token:       token,
		RedirectURL: token.RefString("redirectUrl"),
	}

	if !consumed {
		result.Status = CheckAlreadyChecked
		return result, nil
	}

	result.Status = CheckValid

	event := ActivityEvent{
		EventType: ActivityEventCheckConfirmed,
		Metadata: map[string]any{
			"reference": token.Reference,
		},
	}
	if token.UserID != nil {
		event.Actor = ActorRef{ID: token.UserID.String(), Type: "user"}
		event.UserID = token.UserID.String()
	}
	emitActivity(ctx, o.activity, o.logger, event)

	return result, nil
}

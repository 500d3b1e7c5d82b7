package identity

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"

	"github.com/goliatone/go-errors"
)

const (
	secretLength  = 40
	secretCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// SecretCache is a process-wide keyed cache over SecretStore lookups.
// First access per key round-trips the store; concurrent first-time
// generators converge on the one value the store kept.
type SecretCache struct {
	mu      sync.Mutex
	secrets map[string]string
}

// NewSecretCache creates an empty cache.
func NewSecretCache() *SecretCache {
	return &SecretCache{secrets: map[string]string{}}
}

// GetOrCreate returns the cached secret for key, loading or generating it
// through the store on first access. Generation uses SetIfAbsent so two
// racing processes both end up with the single stored value.
func (c *SecretCache) GetOrCreate(ctx context.Context, key string, store SecretStore) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if secret, ok := c.secrets[key]; ok {
		return secret, nil
	}

	if store == nil {
		return "", errors.New("secret store is required", errors.CategoryBadInput)
	}

	secret, err := store.Get(ctx)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to load signing secret")
	}

	if secret == "" {
		candidate, err := randomSecret(secretLength)
		if err != nil {
			return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate signing secret")
		}

		secret, err = store.SetIfAbsent(ctx, candidate)
		if err != nil {
			return "", errors.Wrap(err, errors.CategoryInternal, "failed to persist signing secret")
		}
	}

	c.secrets[key] = secret
	return secret, nil
}

// Forget drops a cached entry, forcing the next access through the store.
func (c *SecretCache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.secrets, key)
}

func randomSecret(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(secretCharset)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = secretCharset[n.Int64()]
	}
	return string(out), nil
}

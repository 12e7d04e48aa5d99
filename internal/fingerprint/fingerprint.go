// Package fingerprint derives content hashes of business source data.
// The cache compares a stored fingerprint against the current one to
// detect upstream data drift.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/marketlens-ai/marketlens/internal/model"
	"github.com/marketlens-ai/marketlens/internal/store"
)

// Provider returns the current fingerprint for a business's source data.
// An empty fingerprint with a nil error means no source data exists yet.
type Provider interface {
	Fingerprint(ctx context.Context, businessID string) (string, error)
}

// StoreProvider hashes the business profile held in the store.
type StoreProvider struct {
	store store.Store
}

func NewStoreProvider(s store.Store) *StoreProvider {
	return &StoreProvider{store: s}
}

func (p *StoreProvider) Fingerprint(ctx context.Context, businessID string) (string, error) {
	profile, err := p.store.GetBusinessProfile(ctx, businessID)
	if err != nil {
		return "", eris.Wrapf(err, "fingerprint: load profile %s", businessID)
	}
	if profile == nil {
		return "", nil
	}
	return Hash(profile), nil
}

// Hash computes the content fingerprint of a profile. The hash covers the
// fields an analysis is derived from, so unrelated profile churn (for
// example UpdatedAt) does not invalidate cached analyses.
func Hash(p *model.BusinessProfile) string {
	h := sha256.New()
	h.Write([]byte(p.Name))
	h.Write([]byte{0})
	h.Write([]byte(p.Industry))
	h.Write([]byte{0})
	h.Write([]byte(p.WebsiteText))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(p.KeyFacts, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}

// Static is a fixed-map Provider used in tests and offline tooling.
type Static map[string]string

func (s Static) Fingerprint(_ context.Context, businessID string) (string, error) {
	return s[businessID], nil
}

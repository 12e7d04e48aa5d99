package fingerprint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens-ai/marketlens/internal/model"
	"github.com/marketlens-ai/marketlens/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(t.TempDir() + "/fingerprint_test.db")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHash_Deterministic(t *testing.T) {
	p := &model.BusinessProfile{
		BusinessID:  "biz-1",
		Name:        "Acme Coffee",
		Industry:    "hospitality",
		WebsiteText: "We roast beans.",
		KeyFacts:    []string{"founded 2019", "two locations"},
	}
	assert.Equal(t, Hash(p), Hash(p))
}

func TestHash_ChangesWithContent(t *testing.T) {
	base := model.BusinessProfile{
		Name:        "Acme Coffee",
		Industry:    "hospitality",
		WebsiteText: "We roast beans.",
		KeyFacts:    []string{"founded 2019"},
	}

	changed := base
	changed.WebsiteText = "We roast beans and serve pastries."
	assert.NotEqual(t, Hash(&base), Hash(&changed))

	changed = base
	changed.KeyFacts = []string{"founded 2020"}
	assert.NotEqual(t, Hash(&base), Hash(&changed))
}

func TestHash_IgnoresUpdatedAt(t *testing.T) {
	a := model.BusinessProfile{Name: "Acme", UpdatedAt: time.Now()}
	b := a
	b.UpdatedAt = b.UpdatedAt.Add(24 * time.Hour)
	assert.Equal(t, Hash(&a), Hash(&b))
}

func TestHash_FieldBoundaries(t *testing.T) {
	// "ab" + "c" must not collide with "a" + "bc".
	a := model.BusinessProfile{Name: "ab", Industry: "c"}
	b := model.BusinessProfile{Name: "a", Industry: "bc"}
	assert.NotEqual(t, Hash(&a), Hash(&b))
}

func TestStoreProvider_Fingerprint(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := NewStoreProvider(s)

	require.NoError(t, s.UpsertBusinessProfile(ctx, model.BusinessProfile{
		BusinessID:  "biz-1",
		Name:        "Acme Coffee",
		Industry:    "hospitality",
		WebsiteText: "We roast beans.",
		UpdatedAt:   time.Now().UTC(),
	}))

	fp, err := p.Fingerprint(ctx, "biz-1")
	require.NoError(t, err)
	assert.Len(t, fp, 64)

	again, err := p.Fingerprint(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, fp, again)
}

func TestStoreProvider_MissingProfile(t *testing.T) {
	s := newTestStore(t)
	p := NewStoreProvider(s)

	fp, err := p.Fingerprint(context.Background(), "no-such-business")
	require.NoError(t, err)
	assert.Empty(t, fp)
}

func TestStatic(t *testing.T) {
	p := Static{"biz-1": "hash-1"}

	fp, err := p.Fingerprint(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", fp)

	fp, err = p.Fingerprint(context.Background(), "biz-2")
	require.NoError(t, err)
	assert.Empty(t, fp)
}

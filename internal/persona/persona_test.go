package persona

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/siegecorps/siegebot/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	mu     sync.Mutex
	values map[int64]string
	err    error
}

func newMapStore() *mapStore { return &mapStore{values: make(map[int64]string)} }

func (s *mapStore) GetPersona(_ context.Context, scope int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[scope], s.err
}

func (s *mapStore) SetPersona(_ context.Context, scope int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.values[scope] = name
	return nil
}

func (s *mapStore) ListPersonas(context.Context) (map[int64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, s.err
}

func TestCatalogIsComplete(t *testing.T) {
	for k := range kindNames {
		p := Get(k)
		assert.Equal(t, k, p.Kind)
		assert.NotEmpty(t, p.Voice, k.String())
		assert.NotEmpty(t, p.StartMessage(), k.String())
		assert.NotEmpty(t, p.HelpMessage(), k.String())
		assert.NotEmpty(t, p.FallbackMessage(), k.String())
		assert.NotEmpty(t, p.Flavors, k.String())
		assert.NotEmpty(t, p.Moods, k.String())
		assert.Greater(t, p.MaxSentencesComplex, p.MaxSentences)
	}
	assert.Equal(t, []string{"harley", "siege", "sobert"}, Names())
}

func TestLookup(t *testing.T) {
	p, err := Lookup("  Harley ")
	require.NoError(t, err)
	assert.Equal(t, Harley, p.Kind)

	_, err = Lookup("joker")
	assert.ErrorIs(t, err, models.ErrUnknownPersona)
}

func TestRegistryUnknownSwitchLeavesStateUnchanged(t *testing.T) {
	log, _ := test.NewNullLogger()
	r := NewRegistry(newMapStore(), ModePerChat, "siege", log)
	ctx := context.Background()

	before := r.Active(ctx, 42).StartMessage()
	_, err := r.Set(ctx, 42, "joker")
	assert.ErrorIs(t, err, models.ErrUnknownPersona)
	assert.Equal(t, before, r.Active(ctx, 42).StartMessage())
}

func TestRegistryScopes(t *testing.T) {
	log, _ := test.NewNullLogger()
	ctx := context.Background()

	t.Run("per chat", func(t *testing.T) {
		store := newMapStore()
		r := NewRegistry(store, ModePerChat, "siege", log)
		_, err := r.Set(ctx, 1, "sobert")
		require.NoError(t, err)

		assert.Equal(t, Sobert, r.Active(ctx, 1).Kind)
		assert.Equal(t, Siege, r.Active(ctx, 2).Kind)
		assert.Equal(t, "sobert", store.values[1])

		// survives a restart through the store
		fresh := NewRegistry(store, ModePerChat, "siege", log)
		assert.Equal(t, Sobert, fresh.Active(ctx, 1).Kind)

		counts, err := r.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"siege": 0, "harley": 0, "sobert": 1}, counts)
	})

	t.Run("global", func(t *testing.T) {
		store := newMapStore()
		r := NewRegistry(store, ModeGlobal, "siege", log)
		_, err := r.Set(ctx, 1, "harley")
		require.NoError(t, err)

		assert.Equal(t, Harley, r.Active(ctx, 99).Kind)
		assert.Equal(t, "harley", store.values[globalScope])
	})
}

func TestRegistryCacheIsBounded(t *testing.T) {
	log, _ := test.NewNullLogger()
	ctx := context.Background()
	store := newMapStore()
	r := NewRegistry(store, ModePerChat, "siege", log)

	for chat := int64(1); chat <= activeCacheSize+10; chat++ {
		r.Active(ctx, chat)
	}
	assert.Equal(t, activeCacheSize, r.Cached())

	_, err := r.Set(ctx, 1, "harley")
	require.NoError(t, err)
	for chat := int64(activeCacheSize + 11); chat <= 2*activeCacheSize+20; chat++ {
		r.Active(ctx, chat)
	}
	assert.Equal(t, Harley, r.Active(ctx, 1).Kind, "evicted scopes are read back from storage")
}

func TestRegistryStoreFailure(t *testing.T) {
	log, _ := test.NewNullLogger()
	store := newMapStore()
	store.err = errors.New("redis down")
	r := NewRegistry(store, ModePerChat, "harley", log)
	ctx := context.Background()

	assert.Equal(t, Harley, r.Active(ctx, 5).Kind)
	_, err := r.Set(ctx, 5, "sobert")
	assert.Error(t, err)
	assert.Equal(t, Harley, r.Active(ctx, 5).Kind)
}

func TestRegistryUnknownDefault(t *testing.T) {
	log, _ := test.NewNullLogger()
	r := NewRegistry(newMapStore(), "bogus", "nobody", log)
	assert.Equal(t, ModePerChat, r.Mode())
	assert.Equal(t, Siege, r.Active(context.Background(), 1).Kind)
}

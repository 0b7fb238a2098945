package persona

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

const (
	ModePerChat = "per_chat"
	ModeGlobal  = "global"

	// globalScope is the storage key used in global mode
	globalScope int64 = 0

	// activeCacheSize bounds the in-memory view; evicted scopes are re-read from storage
	activeCacheSize = 1024
)

// Store persists the active persona name per scope
type Store interface {
	GetPersona(ctx context.Context, scope int64) (string, error)
	SetPersona(ctx context.Context, scope int64, name string) error
	ListPersonas(ctx context.Context) (map[int64]string, error)
}

// Registry tracks the active persona of every conversation
type Registry struct {
	store  Store
	mode   string
	def    Persona
	logger *logrus.Logger
	active *lru.Cache[int64, Kind]
}

// NewRegistry creates a registry. An unknown default falls back to Siege.
func NewRegistry(store Store, mode, defaultName string, logger *logrus.Logger) *Registry {
	def, err := Lookup(defaultName)
	if err != nil {
		logger.WithField("persona", defaultName).Warn("Unknown default persona, using siege")
		def = Get(Siege)
	}
	if mode != ModeGlobal {
		mode = ModePerChat
	}
	active, _ := lru.New[int64, Kind](activeCacheSize)
	return &Registry{
		store:  store,
		mode:   mode,
		def:    def,
		logger: logger,
		active: active,
	}
}

func (r *Registry) scope(chatID int64) int64 {
	if r.mode == ModeGlobal {
		return globalScope
	}
	return chatID
}

// Active returns the persona for chatID. Storage failures fall back to the default.
func (r *Registry) Active(ctx context.Context, chatID int64) Persona {
	scope := r.scope(chatID)

	if k, ok := r.active.Get(scope); ok {
		return Get(k)
	}

	name, err := r.store.GetPersona(ctx, scope)
	if err != nil {
		r.logger.WithError(err).WithField("scope", scope).Warn("Failed to load persona")
		return r.def
	}
	p := r.def
	if name != "" {
		if stored, err := Lookup(name); err == nil {
			p = stored
		}
	}

	r.active.Add(scope, p.Kind)
	return p
}

// Set switches the persona for chatID. Unknown names return ErrUnknownPersona
// and leave the active persona unchanged.
func (r *Registry) Set(ctx context.Context, chatID int64, name string) (Persona, error) {
	p, err := Lookup(name)
	if err != nil {
		return Persona{}, err
	}

	scope := r.scope(chatID)
	if err := r.store.SetPersona(ctx, scope, p.Name()); err != nil {
		return Persona{}, err
	}

	r.active.Add(scope, p.Kind)

	r.logger.WithFields(logrus.Fields{
		"scope":   scope,
		"persona": p.Name(),
	}).Info("Persona switched")
	return p, nil
}

// Counts reports how many scopes use each persona, for the gauge
func (r *Registry) Counts(ctx context.Context) (map[string]int, error) {
	stored, err := r.store.ListPersonas(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(kindNames))
	for _, n := range Names() {
		counts[n] = 0
	}
	for _, name := range stored {
		if p, err := Lookup(name); err == nil {
			counts[p.Name()]++
		}
	}
	return counts, nil
}

// Cached returns how many scopes are held in memory
func (r *Registry) Cached() int { return r.active.Len() }

// Mode returns per_chat or global
func (r *Registry) Mode() string { return r.mode }

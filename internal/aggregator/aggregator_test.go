package aggregator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/siegecorps/siegebot/internal/config"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/siegecorps/siegebot/internal/services/cache"
	"github.com/siegecorps/siegebot/internal/services/directory"
	"github.com/siegecorps/siegebot/internal/services/lookup"
	"github.com/siegecorps/siegebot/internal/services/storage"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAdmin struct {
	status models.AdminStatus
	panics bool
}

func (s staticAdmin) Status(context.Context, models.InboundMessage) models.AdminStatus {
	if s.panics {
		panic("admin registry exploded")
	}
	return s.status
}

type stubWiki struct {
	calls atomic.Int32
	block bool
}

func (s *stubWiki) Lookup(ctx context.Context, query string) (lookup.Article, error) {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return lookup.Article{}, ctx.Err()
	}
	switch query {
	case "Mercury":
		return lookup.Article{}, &lookup.DisambiguationError{Query: query, Candidates: []string{"Mercury (planet)", "Mercury (element)"}}
	case "Mercury (planet)":
		return lookup.Article{Title: "Mercury (planet)", Summary: "Mercury is the smallest planet."}, nil
	}
	return lookup.Article{}, lookup.ErrNotFound
}

type stubWeb struct{ err error }

func (s stubWeb) Extract(context.Context, string) (string, error) { return "page text", s.err }

type stubDirectory struct{}

func (stubDirectory) Load(context.Context, string) error { return nil }
func (stubDirectory) Reload(context.Context) error       { return nil }
func (stubDirectory) Len() int                           { return 1 }
func (stubDirectory) Find(_ context.Context, name string) (directory.Entry, error) {
	if name == "acme" {
		return directory.Entry{Name: "Acme Inc", Phone: "+1 555 0199"}, nil
	}
	return directory.Entry{}, lookup.ErrNotFound
}

type failingStore struct{ Store }

func (failingStore) GetHistory(context.Context, int64) ([]models.HistoryTurn, error) {
	return nil, errors.New("redis down")
}

func (failingStore) GetProfile(context.Context, int64) (*models.UserProfile, error) {
	return nil, errors.New("redis down")
}

func newStore(t *testing.T, log *logrus.Logger) *storage.Manager {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.TTL = time.Hour
	cfg.Storage.Memory.CleanupInterval = time.Minute
	return storage.NewManagerWith(storage.NewMemoryStorage(cfg, log), nil, nil, log)
}

func newCache(log *logrus.Logger) cache.Service {
	cfg := &config.Config{}
	cfg.Cache.Enabled = true
	cfg.Cache.TTL = time.Hour
	cfg.Cache.MaxSize = 100
	return cache.NewCache(cfg, nil, log)
}

func message(text string) models.InboundMessage {
	return models.InboundMessage{
		ChatID:         -100,
		ChatType:       models.ChatGroup,
		SenderID:       7,
		SenderUsername: "dieseljack",
		SenderName:     "Diesel",
		Text:           text,
	}
}

func TestBuildMathAndProfile(t *testing.T) {
	log, _ := test.NewNullLogger()
	store := newStore(t, log)
	admin := staticAdmin{status: models.AdminStatus{IsAdmin: true, Title: "Siege Corps Leader with Gas Mask"}}
	a := New(admin, store, Sources{}, Options{BotUsername: "Siege_Chat_Bot"}, nil, log)
	ctx := context.Background()

	rc, err := a.Build(ctx, message("@Siege_Chat_Bot what is 12 + 8?"), models.EligibleMention)
	require.NoError(t, err)

	assert.Equal(t, "what is 12 + 8?", rc.CleanText)
	assert.Equal(t, models.IntentMath, rc.Intent.Kind)
	assert.Equal(t, "20", rc.Intent.Payload)
	assert.Equal(t, models.EligibleMention, rc.Eligibility)
	assert.True(t, rc.Profile.IsAdmin)
	assert.Equal(t, "Siege Corps Leader with Gas Mask", rc.Profile.AdminTitle)
	assert.Empty(t, rc.History, "history is read before the new turn is appended")

	saved, err := store.GetProfile(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.MessageCount)

	turns, err := store.GetHistory(ctx, 7)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, rc.CleanText, turns[0].Text)

	rc, err = a.Build(ctx, message("@Siege_Chat_Bot I love anime"), models.EligibleMention)
	require.NoError(t, err)
	assert.Len(t, rc.History, 1)
	assert.Equal(t, []string{"anime"}, rc.Profile.Interests)
	assert.Equal(t, models.AttitudePositive, rc.Profile.Attitude)

	rc, err = a.Build(ctx, message("@Siege_Chat_Bot and gaming"), models.EligibleMention)
	require.NoError(t, err)
	assert.Len(t, rc.History, 2)
	assert.Equal(t, []string{"anime", "gaming"}, rc.Profile.Interests)
	assert.Equal(t, 3, rc.Profile.MessageCount)
}

func TestBuildSensitiveSkipsHistoryAndLookups(t *testing.T) {
	log, _ := test.NewNullLogger()
	store := newStore(t, log)
	wiki := &stubWiki{}
	a := New(staticAdmin{}, store, Sources{Encyclopedia: wiki}, Options{}, nil, log)
	ctx := context.Background()

	rc, err := a.Build(ctx, message("who was hitler"), models.EligibleReply)
	require.NoError(t, err)
	assert.True(t, rc.Sensitive)
	assert.Equal(t, models.IntentSensitive, rc.Intent.Kind)
	assert.EqualValues(t, 0, wiki.calls.Load())

	turns, err := store.GetHistory(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestBuildWikiDisambiguationAndCache(t *testing.T) {
	log, _ := test.NewNullLogger()
	wiki := &stubWiki{}
	a := New(staticAdmin{}, newStore(t, log), Sources{Encyclopedia: wiki, Cache: newCache(log)}, Options{}, nil, log)
	ctx := context.Background()

	rc, err := a.Build(ctx, message("tell me about Mercury"), models.EligiblePrivate)
	require.NoError(t, err)
	assert.Equal(t, models.IntentWiki, rc.Intent.Kind)
	assert.Equal(t, "Mercury (planet)", rc.Intent.Title)
	assert.Equal(t, "Mercury is the smallest planet.", rc.Intent.Payload)
	assert.False(t, rc.Intent.Failed)
	assert.True(t, rc.Complex)
	assert.EqualValues(t, 2, wiki.calls.Load())

	rc, err = a.Build(ctx, message("tell me about Mercury"), models.EligiblePrivate)
	require.NoError(t, err)
	assert.Equal(t, "Mercury is the smallest planet.", rc.Intent.Payload)
	assert.EqualValues(t, 2, wiki.calls.Load(), "second lookup is served from cache")

	rc, err = a.Build(ctx, message("who is Nobody Atall"), models.EligiblePrivate)
	require.NoError(t, err)
	assert.True(t, rc.Intent.Failed)
	assert.Empty(t, rc.Intent.Payload)
}

func TestBuildLookupTimeoutDegrades(t *testing.T) {
	log, _ := test.NewNullLogger()
	wiki := &stubWiki{block: true}
	a := New(staticAdmin{}, newStore(t, log), Sources{Encyclopedia: wiki}, Options{LookupTimeout: 50 * time.Millisecond}, nil, log)

	start := time.Now()
	rc, err := a.Build(context.Background(), message("wikipedia Napoleon"), models.EligiblePrivate)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, rc.Intent.Failed)
	assert.Empty(t, rc.Intent.Payload)
}

func TestBuildBusinessWebAndTime(t *testing.T) {
	log, _ := test.NewNullLogger()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	a := New(staticAdmin{}, newStore(t, log), Sources{
		Directory: stubDirectory{},
		Web:       stubWeb{},
	}, Options{Location: loc}, nil, log)
	a.now = func() time.Time { return time.Date(2024, 1, 15, 20, 30, 0, 0, time.UTC) }
	ctx := context.Background()

	rc, err := a.Build(ctx, message("phone number for acme"), models.EligiblePrivate)
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc. Phone: +1 555 0199", rc.Intent.Payload)

	rc, err = a.Build(ctx, message("read https://www.bbc.co.uk/news/x."), models.EligiblePrivate)
	require.NoError(t, err)
	assert.Equal(t, "page text", rc.Intent.Payload)
	assert.Equal(t, "https://www.bbc.co.uk/news/x", rc.Intent.Title)

	rc, err = a.Build(ctx, message("what time is it"), models.EligiblePrivate)
	require.NoError(t, err)
	assert.Equal(t, "Monday, January 15, 2024 at 3:30 PM EST", rc.Intent.Payload)

	denied := New(staticAdmin{}, newStore(t, log), Sources{Web: stubWeb{err: models.ErrLookupDenied}}, Options{}, nil, log)
	rc, err = denied.Build(ctx, message("https://example.com/page"), models.EligiblePrivate)
	require.NoError(t, err)
	assert.True(t, rc.Intent.Failed)
}

func TestBuildStoreFailuresDegrade(t *testing.T) {
	log, _ := test.NewNullLogger()
	a := New(staticAdmin{}, failingStore{Store: newStore(t, log)}, Sources{}, Options{}, nil, log)

	rc, err := a.Build(context.Background(), message("hello"), models.EligiblePrivate)
	require.NoError(t, err)
	assert.Empty(t, rc.History)
	assert.Equal(t, 1, rc.Profile.MessageCount)
}

func TestBuildPanicBecomesAggregationError(t *testing.T) {
	log, _ := test.NewNullLogger()
	a := New(staticAdmin{panics: true}, newStore(t, log), Sources{}, Options{}, nil, log)

	rc, err := a.Build(context.Background(), message("hello"), models.EligiblePrivate)
	assert.Nil(t, rc)
	assert.ErrorIs(t, err, models.ErrInternalAggregation)
}

package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/siegecorps/siegebot/internal/config"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	admins []int64
	err    error
	calls  int
}

func (s *stubSource) ChatAdministrators(_ context.Context, _ int64) ([]int64, error) {
	s.calls++
	return s.admins, s.err
}

func newTestRegistry(src SnapshotSource) (*Registry, *time.Time) {
	log, _ := test.NewNullLogger()
	r := NewRegistry(config.AdminConfig{RefreshInterval: 10 * time.Minute, SnapshotSize: 8}, src, log)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestMatchStaticRecords(t *testing.T) {
	r, _ := newTestRegistry(nil)

	rec, ok := r.Match("DieselJack", "")
	require.True(t, ok)
	assert.Equal(t, "Siege Corps Leader with Gas Mask", rec.Title)

	rec, ok = r.Match("", "Tao")
	require.True(t, ok)
	assert.Equal(t, "Tao", rec.Name)

	_, ok = r.Match("randomuser", "Bob")
	assert.False(t, ok)
	_, ok = r.Match("", "")
	assert.False(t, ok)
}

func TestKnownRecordsOverrideDefaults(t *testing.T) {
	log, _ := test.NewNullLogger()
	r := NewRegistry(config.AdminConfig{
		RefreshInterval: time.Minute,
		Known:           []models.AdminRecord{{Name: "Ops", Title: "Night Watch", Variations: []string{"OPS"}}},
	}, nil, log)

	rec, ok := r.Match("the_ops_guy", "")
	require.True(t, ok)
	assert.Equal(t, "Night Watch", rec.Title)
	_, ok = r.Match("dieseljack", "")
	assert.False(t, ok)
}

func TestStatusRefreshIsThrottledPerChat(t *testing.T) {
	src := &stubSource{admins: []int64{7}}
	r, now := newTestRegistry(src)
	ctx := context.Background()
	group := models.InboundMessage{ChatID: -100, ChatType: models.ChatGroup, SenderID: 7}

	st := r.Status(ctx, group)
	assert.True(t, st.IsAdmin)
	assert.True(t, st.ChatAdmin)

	for i := 0; i < 5; i++ {
		r.Status(ctx, group)
	}
	assert.Equal(t, 1, src.calls)

	// a different chat gets its own budget
	other := group
	other.ChatID = -200
	r.Status(ctx, other)
	assert.Equal(t, 2, src.calls)

	*now = now.Add(11 * time.Minute)
	r.Status(ctx, group)
	assert.Equal(t, 3, src.calls)
}

func TestStatusPrivateChatSkipsSnapshot(t *testing.T) {
	src := &stubSource{admins: []int64{7}}
	r, _ := newTestRegistry(src)

	st := r.Status(context.Background(), models.InboundMessage{ChatID: 7, ChatType: models.ChatPrivate, SenderID: 7})
	assert.False(t, st.IsAdmin)
	assert.Zero(t, src.calls)
}

func TestStatusRefreshFailureDegrades(t *testing.T) {
	src := &stubSource{err: errors.New("boom")}
	r, _ := newTestRegistry(src)

	st := r.Status(context.Background(), models.InboundMessage{
		ChatID: -1, ChatType: models.ChatGroup, SenderID: 3, SenderUsername: "charlie_r",
	})
	assert.True(t, st.IsAdmin)
	assert.False(t, st.ChatAdmin)
	assert.Equal(t, "Feisty Female Army Raccoon", st.Title)
}

func TestEvictIdle(t *testing.T) {
	src := &stubSource{}
	r, now := newTestRegistry(src)
	r.Status(context.Background(), models.InboundMessage{ChatID: -1, ChatType: models.ChatGroup})
	require.Equal(t, 1, r.Tracked())

	assert.Zero(t, r.EvictIdle(now.Add(time.Minute)))
	assert.Equal(t, 1, r.EvictIdle(now.Add(11*time.Minute)))
	assert.Zero(t, r.Tracked())
}

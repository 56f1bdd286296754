package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elo-ledger/internal/config"
	"github.com/elo-ledger/internal/domain"
	"github.com/elo-ledger/internal/redis"
)

type fakeSource struct {
	profiles []domain.Profile
	err      error
}

func (f *fakeSource) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	return f.profiles, f.err
}

type fakeLoader struct {
	batches [][]redis.BatchRating
	members map[domain.Identity]uint32
	resets  int
	err     error
}

func (f *fakeLoader) BatchSetRatings(ctx context.Context, ratings []redis.BatchRating) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]redis.BatchRating(nil), ratings...))
	if f.members == nil {
		f.members = make(map[domain.Identity]uint32)
	}
	for _, r := range ratings {
		f.members[r.Player] = r.Rating
	}
	return nil
}

func (f *fakeLoader) GetCount(ctx context.Context) (int64, error) {
	return int64(len(f.members)), nil
}

func (f *fakeLoader) Reset(ctx context.Context) error {
	f.resets++
	f.members = nil
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func profiles(n int) []domain.Profile {
	out := make([]domain.Profile, n)
	for i := range out {
		out[i].Owner[0] = byte(i + 1)
		out[i].Username = "p"
		out[i].Rating = uint32(1000 + i)
	}
	return out
}

func TestSyncFromStore_Batches(t *testing.T) {
	source := &fakeSource{profiles: profiles(5)}
	loader := &fakeLoader{}
	w := NewSyncWorker(loader, source, &config.SyncConfig{BatchSize: 2, Interval: time.Minute}, testLogger())

	require.NoError(t, w.SyncFromStore(context.Background()))

	require.Len(t, loader.batches, 3)
	assert.Len(t, loader.batches[0], 2)
	assert.Len(t, loader.batches[1], 2)
	assert.Len(t, loader.batches[2], 1)
	assert.Equal(t, uint32(1004), loader.batches[2][0].Rating)
	assert.Equal(t, byte(5), loader.batches[2][0].Player[0])
	assert.Zero(t, loader.resets)
}

func TestSyncFromStore_DropsStalePlayers(t *testing.T) {
	var stale domain.Identity
	stale[0] = 0xff
	loader := &fakeLoader{members: map[domain.Identity]uint32{stale: 1900}}
	source := &fakeSource{profiles: profiles(2)}
	w := NewSyncWorker(loader, source, &config.SyncConfig{}, testLogger())

	require.NoError(t, w.SyncFromStore(context.Background()))

	assert.Equal(t, 1, loader.resets)
	assert.Len(t, loader.members, 2)
	assert.NotContains(t, loader.members, stale)
	assert.Equal(t, uint32(1001), loader.members[source.profiles[1].Owner])
}

func TestSyncFromStore_Empty(t *testing.T) {
	loader := &fakeLoader{}
	w := NewSyncWorker(loader, &fakeSource{}, &config.SyncConfig{}, testLogger())

	require.NoError(t, w.SyncFromStore(context.Background()))
	assert.Empty(t, loader.batches)
}

func TestSyncFromStore_Errors(t *testing.T) {
	boom := errors.New("boom")

	w := NewSyncWorker(&fakeLoader{}, &fakeSource{err: boom}, &config.SyncConfig{}, testLogger())
	assert.ErrorIs(t, w.SyncFromStore(context.Background()), boom)

	w = NewSyncWorker(&fakeLoader{err: boom}, &fakeSource{profiles: profiles(1)}, &config.SyncConfig{}, testLogger())
	assert.ErrorIs(t, w.SyncFromStore(context.Background()), boom)
}

func TestStartStop(t *testing.T) {
	w := NewSyncWorker(&fakeLoader{}, &fakeSource{}, &config.SyncConfig{Interval: time.Hour}, testLogger())

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop())
}

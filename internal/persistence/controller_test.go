package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/wallet-store/internal/model"
	"github.com/mmeshcher/wallet-store/internal/repository"
	"github.com/mmeshcher/wallet-store/internal/snapshot"
	"github.com/mmeshcher/wallet-store/internal/store"
)

type failingStorage struct{}

func (failingStorage) Load(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func (failingStorage) Save(ctx context.Context, key string, blob []byte) error {
	return errors.New("disk on fire")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLoad_AbsentSnapshotKeepsFreshState(t *testing.T) {
	s := store.New(nil, nil, nil)
	defer s.Close()

	c := NewController(s, repository.NewMemoryRepository(), time.Second, nil)
	require.NoError(t, c.Load(context.Background()))

	user, err := s.ActiveUser()
	require.NoError(t, err)
	assert.Equal(t, model.AnonymousUserID, user.ID)
}

func TestLoad_RestoresSavedSnapshot(t *testing.T) {
	repo := repository.NewMemoryRepository()

	st := store.NewState(time.Now())
	st.Rewards["quiz-1"] = model.Reward{ID: "quiz-1", Value: 100, Completed: true}
	st.Flags.Onboarded = true
	blob, err := snapshot.Encode(st, time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), StorageKey, blob))

	s := store.New(nil, nil, nil)
	defer s.Close()

	c := NewController(s, repo, time.Second, nil)
	require.NoError(t, c.Load(context.Background()))

	assert.Equal(t, int64(100), s.EarnedSat())
	assert.True(t, s.Flags().Onboarded)
}

func TestLoad_CorruptSnapshotStartsFresh(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{name: "unsupported version", blob: `{"version":99,"state":{}}`},
		{name: "truncated", blob: `{"version":2,"state":`},
		{name: "null wallet", blob: `{"version":2,"state":{"wallets":{"BTC":null}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := repository.NewMemoryRepository()
			require.NoError(t, repo.Save(context.Background(), StorageKey, []byte(tt.blob)))

			s := store.New(nil, nil, nil)
			defer s.Close()

			c := NewController(s, repo, time.Second, nil)
			require.NotPanics(t, func() {
				require.NoError(t, c.Load(context.Background()))
			})
			assert.Empty(t, s.Rewards())

			w, err := s.Wallet(model.CurrencyBTC)
			require.NoError(t, err)
			assert.True(t, w.Balance.IsZero())
		})
	}
}

func TestLoad_StorageError(t *testing.T) {
	s := store.New(nil, nil, nil)
	defer s.Close()

	c := NewController(s, failingStorage{}, time.Second, nil)
	assert.Error(t, c.Load(context.Background()))
}

func TestRun_ThrottlesWrites(t *testing.T) {
	repo := repository.NewMemoryRepository()
	s := store.New(nil, nil, nil)
	defer s.Close()

	c := NewController(s, repo, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.AppendPriceTick(model.PriceTick{Base: int64(i * 100)}))
	}

	waitFor(t, func() bool { return repo.Saves() >= 1 })
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, repo.Saves())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 2, repo.Saves())

	blob, ok, err := repo.Load(context.Background(), StorageKey)
	require.NoError(t, err)
	require.True(t, ok)

	st, err := snapshot.Decode(blob)
	require.NoError(t, err)
	require.Len(t, st.Prices, 5)
	assert.Equal(t, int64(500), st.Prices[4].Base)
}

func TestRun_FinalFlushOnStoreClose(t *testing.T) {
	repo := repository.NewMemoryRepository()
	s := store.New(nil, nil, nil)

	c := NewController(s, repo, time.Hour, nil)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	require.NoError(t, s.CompleteOnboarding())
	s.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("controller did not stop after store close")
	}

	blob, ok, err := repo.Load(context.Background(), StorageKey)
	require.NoError(t, err)
	require.True(t, ok)

	st, err := snapshot.Decode(blob)
	require.NoError(t, err)
	assert.True(t, st.Flags.Onboarded)
}

func TestRun_ImmediateWritesWithoutThrottle(t *testing.T) {
	repo := repository.NewMemoryRepository()
	s := store.New(nil, nil, nil)
	defer s.Close()

	c := NewController(s, repo, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	require.NoError(t, s.SetModalClipboardVisible(true))
	waitFor(t, func() bool { return repo.Saves() >= 1 })
}

func TestFlush_StorageError(t *testing.T) {
	s := store.New(nil, nil, nil)
	defer s.Close()

	c := NewController(s, failingStorage{}, time.Second, nil)
	assert.Error(t, c.Flush(context.Background()))
}

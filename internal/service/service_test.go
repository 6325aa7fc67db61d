package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmeshcher/wallet-store/internal/model"
)

type stubStore struct {
	mu sync.Mutex

	rewards  []model.Reward
	seeded   []model.Reward
	seedErr  error
	loggedIn bool
	flags    model.SessionFlags
	changes  chan struct{}

	refreshes int
}

func (s *stubStore) Rewards() []model.Reward { return s.rewards }

func (s *stubStore) SeedRewards(rewards []model.Reward) error {
	s.seeded = rewards
	return s.seedErr
}

func (s *stubStore) RefreshWallet(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	return nil
}

func (s *stubStore) LoggedIn() bool { return s.loggedIn }

func (s *stubStore) Flags() model.SessionFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

func (s *stubStore) Subscribe() <-chan struct{} { return s.changes }

func (s *stubStore) toggle() {
	s.mu.Lock()
	s.flags.AccountRefresh = !s.flags.AccountRefresh
	s.mu.Unlock()
	s.changes <- struct{}{}
}

func (s *stubStore) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

type stubCatalog struct {
	rewards []model.Reward
	err     error
	calls   int
}

func (c *stubCatalog) QueryRewards(ctx context.Context) ([]model.Reward, error) {
	c.calls++
	return c.rewards, c.err
}

func TestSeedCatalog_EmptyStore(t *testing.T) {
	st := &stubStore{}
	cat := &stubCatalog{rewards: []model.Reward{{ID: "quiz-1", Value: 100}}}

	svc := NewService(st, cat, nil)
	if err := svc.SeedCatalog(context.Background()); err != nil {
		t.Fatalf("SeedCatalog error: %v", err)
	}
	if len(st.seeded) != 1 || st.seeded[0].ID != "quiz-1" {
		t.Fatalf("unexpected seeded rewards: %+v", st.seeded)
	}
}

func TestSeedCatalog_SkipsWhenPresent(t *testing.T) {
	st := &stubStore{rewards: []model.Reward{{ID: "quiz-1"}}}
	cat := &stubCatalog{}

	svc := NewService(st, cat, nil)
	if err := svc.SeedCatalog(context.Background()); err != nil {
		t.Fatalf("SeedCatalog error: %v", err)
	}
	if cat.calls != 0 {
		t.Fatalf("catalog queried %d times, want 0", cat.calls)
	}
}

func TestSeedCatalog_PropagatesError(t *testing.T) {
	st := &stubStore{}
	cat := &stubCatalog{err: errors.New("offline")}

	svc := NewService(st, cat, nil)
	if err := svc.SeedCatalog(context.Background()); err == nil {
		t.Fatalf("expected error from catalog")
	}
}

func waitRefreshes(t *testing.T, st *stubStore, want int) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for st.refreshCount() < want {
		if time.Now().After(deadline) {
			t.Fatalf("refreshes = %d, want %d", st.refreshCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartAccountRefresh_RefreshesOnStart(t *testing.T) {
	st := &stubStore{loggedIn: true, changes: make(chan struct{}, 1)}
	svc := NewService(st, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.StartAccountRefresh(ctx)
	waitRefreshes(t, st, 1)
}

func TestStartAccountRefresh_RefreshesOnToggle(t *testing.T) {
	st := &stubStore{loggedIn: true, changes: make(chan struct{}, 1)}
	svc := NewService(st, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.StartAccountRefresh(ctx)
	waitRefreshes(t, st, 1)

	st.toggle()
	waitRefreshes(t, st, 2)
}

func TestStartAccountRefresh_IgnoresOtherChanges(t *testing.T) {
	st := &stubStore{loggedIn: true, changes: make(chan struct{}, 1)}
	svc := NewService(st, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.StartAccountRefresh(ctx)
	waitRefreshes(t, st, 1)

	st.changes <- struct{}{}
	st.changes <- struct{}{}

	if n := st.refreshCount(); n != 1 {
		t.Fatalf("refreshes = %d, want 1", n)
	}
}

func TestStartAccountRefresh_SkipsWithoutSession(t *testing.T) {
	st := &stubStore{changes: make(chan struct{}, 1)}
	svc := NewService(st, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.StartAccountRefresh(ctx)
	st.toggle()
	st.changes <- struct{}{}

	if n := st.refreshCount(); n != 0 {
		t.Fatalf("refreshes = %d, want 0", n)
	}
}

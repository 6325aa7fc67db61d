// Package store реализует реактивное хранилище кошелька: модель, действия и производные представления.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/wallet-store/internal/model"
	"github.com/mmeshcher/wallet-store/internal/session"
)

// maxPriceTicks ограничивает хвост курсов, который хранится и попадает в снимок.
const maxPriceTicks = 64

// Remote описывает контракт удалённого сервиса, используемый действиями.
type Remote interface {
	SetAuthToken(bearer string)
	MutateRewardsCompleted(ctx context.Context, ids []string) ([]model.Reward, error)
	QueryWallet(ctx context.Context) (*model.WalletState, error)
}

// Analytics принимает именованные события. Реализация не должна блокировать вызывающего.
type Analytics interface {
	LogEvent(name string, params map[string]any)
}

type nopAnalytics struct{}

func (nopAnalytics) LogEvent(string, map[string]any) {}

// Store владеет состоянием кошелька. Изменять состояние могут только действия.
//
// actionMu сериализует действия целиком, mu защищает состояние. Удалённые вызовы
// выполняются без mu, поэтому представления и снимки читают последнее зафиксированное состояние.
type Store struct {
	actionMu sync.Mutex

	mu    sync.RWMutex
	state *model.State
	token *session.Token

	remote    Remote
	analytics Analytics
	logger    *zap.Logger

	subsMu sync.Mutex
	subs   []chan struct{}
	closed bool

	ctx    context.Context
	cancel context.CancelFunc

	now   func() time.Time
	newID func() string
}

// New создаёт хранилище со свежим состоянием по умолчанию.
func New(remote Remote, analytics Analytics, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if analytics == nil {
		analytics = nopAnalytics{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Store{
		remote:    remote,
		analytics: analytics,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	s.state = NewState(s.now())

	return s
}

// NewState возвращает состояние только что установленного приложения:
// анонимный пользователь и по одному пустому кошельку на валюту.
func NewState(now time.Time) *model.State {
	return &model.State{
		Users: map[string]model.User{
			model.AnonymousUserID: {ID: model.AnonymousUserID, CreatedAt: now},
		},
		ActiveUserID: model.AnonymousUserID,
		Wallets: map[model.Currency]*model.Wallet{
			model.CurrencyBTC: {ID: string(model.CurrencyBTC), Currency: model.CurrencyBTC, Balance: decimal.Zero},
			model.CurrencyUSD: {ID: string(model.CurrencyUSD), Currency: model.CurrencyUSD, Balance: decimal.Zero},
		},
		Transactions: map[string]model.Transaction{},
		Rewards:      map[string]model.Reward{},
	}
}

// Restore заменяет состояние загруженным снимком. Вызывается при холодном старте до первого действия.
func (s *Store) Restore(state *model.State) {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	st := state.Clone()
	normalize(st, s.now())

	s.mu.Lock()
	if !s.token.Has(s.now()) {
		dropSession(st)
	}
	s.state = st
	s.mu.Unlock()

	s.logger.Info("store restored",
		zap.String("activeUser", st.ActiveUserID),
		zap.Int("transactions", len(st.Transactions)),
		zap.Int("rewards", len(st.Rewards)))
}

// RestoreSession устанавливает ранее выданный токен, например после перезапуска приложения,
// и делает активным пользователя из токена.
func (s *Store) RestoreSession(raw string) error {
	tok, err := session.Parse(raw)
	if err != nil {
		return err
	}
	if !tok.Has(s.now()) {
		return ErrSessionExpired
	}

	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	if err := s.alive(); err != nil {
		return err
	}

	s.remote.SetAuthToken(tok.BearerString())
	s.installUser(tok)
	s.notify()

	return nil
}

// dropSession возвращает анонимного пользователя, если в снимке остался аутентифицированный,
// а токена нет: серверная история не должна смешиваться с локальными выплатами.
func dropSession(st *model.State) {
	if st.ActiveUserID == model.AnonymousUserID {
		return
	}
	if u, ok := st.Users[st.ActiveUserID]; ok {
		u.HasToken = false
		st.Users[u.ID] = u
	}
	st.ActiveUserID = model.AnonymousUserID
	clearLocalTransactions(st)
}

// normalize восстанавливает структурные инварианты: коллекции не nil, кошельки BTC и USD
// существуют, активный пользователь присутствует в коллекции.
func normalize(st *model.State, now time.Time) {
	if st.Users == nil {
		st.Users = map[string]model.User{}
	}
	if st.Wallets == nil {
		st.Wallets = map[model.Currency]*model.Wallet{}
	}
	if st.Transactions == nil {
		st.Transactions = map[string]model.Transaction{}
	}
	if st.Rewards == nil {
		st.Rewards = map[string]model.Reward{}
	}
	for _, c := range []model.Currency{model.CurrencyBTC, model.CurrencyUSD} {
		if _, ok := st.Wallets[c]; !ok {
			st.Wallets[c] = &model.Wallet{ID: string(c), Currency: c, Balance: decimal.Zero}
		}
	}
	if _, ok := st.Users[model.AnonymousUserID]; !ok {
		st.Users[model.AnonymousUserID] = model.User{ID: model.AnonymousUserID, CreatedAt: now}
	}
	if _, ok := st.Users[st.ActiveUserID]; !ok {
		st.ActiveUserID = model.AnonymousUserID
	}
	if len(st.Prices) > maxPriceTicks {
		st.Prices = st.Prices[len(st.Prices)-maxPriceTicks:]
	}
}

// Snapshot возвращает копию последнего зафиксированного состояния.
func (s *Store) Snapshot() *model.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Subscribe возвращает канал уведомлений об изменении состояния.
// Уведомления схлопываются: канал содержит не более одного ожидающего сигнала.
// Канал закрывается при закрытии хранилища.
func (s *Store) Subscribe() <-chan struct{} {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	ch := make(chan struct{}, 1)
	if s.closed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Store) notify() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if s.closed {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close отменяет незавершённые сетевые шаги, дожидается текущего действия
// и закрывает каналы подписчиков, чтобы те записали финальный снимок.
func (s *Store) Close() {
	s.cancel()

	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}

func (s *Store) alive() error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	return nil
}

// bind связывает контекст вызывающего с жизненным циклом хранилища.
func (s *Store) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Store) loggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.Has(s.now())
}

// sessionState сообщает, действителен ли токен и активен ли аутентифицированный пользователь.
func (s *Store) sessionState() (loggedIn, authenticated bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.Has(s.now()), s.state.ActiveUserID != model.AnonymousUserID
}

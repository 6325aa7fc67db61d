package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/wallet-store/internal/model"
	"github.com/mmeshcher/wallet-store/internal/session"
)

// CompleteReward отмечает награду выполненной. Повторный вызов для выполненной награды ничего не делает.
//
// Без токена награда выплачивается локально синтетической транзакцией за один шаг.
// С токеном выполнение фиксируется на сервере, после чего состояние кошелька перечитывается.
func (s *Store) CompleteReward(ctx context.Context, id string) error {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	if err := s.alive(); err != nil {
		return err
	}

	reward, err := s.Reward(id)
	if err != nil {
		return err
	}
	if reward.Completed {
		return nil
	}

	loggedIn, authenticated := s.sessionState()
	if authenticated && !loggedIn {
		return fmt.Errorf("complete reward %s: %w", id, ErrSessionExpired)
	}

	s.analytics.LogEvent("earn", map[string]any{
		"id":       id,
		"loggedIn": loggedIn,
	})

	if !loggedIn {
		if err := s.payRewardLocally(reward); err != nil {
			return err
		}
		s.notify()
		return nil
	}

	ctx, cancel := s.bind(ctx)
	defer cancel()

	acks, err := s.remote.MutateRewardsCompleted(ctx, []string{id})
	if err != nil {
		return fmt.Errorf("%w: complete reward %s: %w", ErrSyncFailure, id, err)
	}
	if err := s.alive(); err != nil {
		return err
	}

	if !s.applyRewardAcks(acks, id) {
		s.logger.Warn("reward not acknowledged by server", zap.String("reward", id))
	}
	s.notify()

	return s.refreshWallet(ctx)
}

func (s *Store) payRewardLocally(reward model.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallet, ok := s.state.Wallets[model.CurrencyBTC]
	if !ok {
		return fmt.Errorf("wallet %s: %w", model.CurrencyBTC, ErrNotFound)
	}

	tx := model.Transaction{
		ID:          s.newID(),
		Amount:      reward.Value,
		Description: reward.ID,
		CreatedAt:   s.now(),
		Settlement:  model.Settlement{Via: model.SettlementIntraLedger},
		Direction:   model.DirectionReceive,
		Status:      model.TransactionStatusSuccess,
		Type:        model.TransactionTypeEarn,
		RewardID:    reward.ID,
	}
	if _, exists := s.state.Transactions[tx.ID]; exists {
		return fmt.Errorf("transaction %s: %w", tx.ID, ErrDuplicate)
	}

	reward.Completed = true
	s.state.Rewards[reward.ID] = reward
	s.state.Transactions[tx.ID] = tx
	wallet.TransactionIDs = append(wallet.TransactionIDs, tx.ID)
	wallet.Balance = wallet.Balance.Add(decimal.NewFromInt(reward.Value))

	s.logger.Info("reward paid locally",
		zap.String("reward", reward.ID),
		zap.Int64("value", reward.Value),
		zap.String("transaction", tx.ID))

	return nil
}

// applyRewardAcks переносит подтверждённые сервером флаги выполнения и сообщает,
// подтверждена ли награда want. Флаг никогда не сбрасывается.
func (s *Store) applyRewardAcks(acks []model.Reward, want string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	acked := false
	for _, ack := range acks {
		r, ok := s.state.Rewards[ack.ID]
		if !ok || !ack.Completed {
			continue
		}
		r.Completed = true
		s.state.Rewards[ack.ID] = r
		if ack.ID == want {
			acked = true
		}
	}
	return acked
}

// CompleteLogin переводит анонимную сессию в аутентифицированную.
//
// Шаги выполняются строго последовательно: событие входа, установка токена,
// синхронизация выполненных наград, очистка локальных транзакций, переключение AccountRefresh.
// При ошибке синхронизации наград действие останавливается до очистки, локальный прогресс сохраняется.
func (s *Store) CompleteLogin(ctx context.Context, rawToken string) error {
	tok, err := session.Parse(rawToken)
	if err != nil {
		return err
	}

	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	if err := s.alive(); err != nil {
		return err
	}

	s.analytics.LogEvent("login", map[string]any{"method": "phone"})

	s.remote.SetAuthToken(tok.BearerString())
	s.installUser(tok)
	s.notify()

	ids := s.completedRewardIDs()
	if len(ids) > 0 {
		ctx, cancel := s.bind(ctx)
		defer cancel()

		if _, err := s.remote.MutateRewardsCompleted(ctx, ids); err != nil {
			return fmt.Errorf("%w: sync completed rewards: %w", ErrSyncFailure, err)
		}
		s.logger.Info("completed rewards synced", zap.Strings("rewards", ids))
	}

	if err := s.alive(); err != nil {
		return err
	}

	s.mu.Lock()
	clearLocalTransactions(s.state)
	s.state.Flags.AccountRefresh = !s.state.Flags.AccountRefresh
	s.mu.Unlock()
	s.notify()

	s.logger.Info("login completed", zap.String("user", tok.Subject()))

	return nil
}

func (s *Store) installUser(tok *session.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = tok
	u, ok := s.state.Users[tok.Subject()]
	if !ok {
		u = model.User{ID: tok.Subject(), CreatedAt: s.now()}
	}
	u.HasToken = true
	s.state.Users[u.ID] = u
	s.state.ActiveUserID = u.ID
}

func (s *Store) completedRewardIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, r := range s.state.Rewards {
		if r.Completed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func clearLocalTransactions(st *model.State) {
	st.Transactions = map[string]model.Transaction{}
	if w, ok := st.Wallets[model.CurrencyBTC]; ok {
		w.TransactionIDs = nil
	}
}

// Logout завершает аутентифицированную сессию и возвращает анонимного пользователя.
func (s *Store) Logout(ctx context.Context) error {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	if err := s.alive(); err != nil {
		return err
	}

	s.remote.SetAuthToken("")

	s.mu.Lock()
	if u, ok := s.state.Users[s.state.ActiveUserID]; ok && u.ID != model.AnonymousUserID {
		u.HasToken = false
		s.state.Users[u.ID] = u
	}
	s.token = nil
	s.state.ActiveUserID = model.AnonymousUserID
	if _, ok := s.state.Users[model.AnonymousUserID]; !ok {
		s.state.Users[model.AnonymousUserID] = model.User{ID: model.AnonymousUserID, CreatedAt: s.now()}
	}
	clearLocalTransactions(s.state)
	s.state.Flags.AccountRefresh = !s.state.Flags.AccountRefresh
	s.mu.Unlock()
	s.notify()

	s.analytics.LogEvent("logout", nil)

	return nil
}

// RefreshWallet перечитывает балансы и транзакции с сервера.
func (s *Store) RefreshWallet(ctx context.Context) error {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	if err := s.alive(); err != nil {
		return err
	}

	ctx, cancel := s.bind(ctx)
	defer cancel()

	return s.refreshWallet(ctx)
}

func (s *Store) refreshWallet(ctx context.Context) error {
	ws, err := s.remote.QueryWallet(ctx)
	if err != nil {
		return fmt.Errorf("%w: query wallet: %w", ErrSyncFailure, err)
	}
	if err := s.alive(); err != nil {
		return err
	}

	s.mu.Lock()
	for _, tx := range ws.Transactions {
		if _, exists := s.state.Transactions[tx.ID]; exists {
			continue
		}
		s.state.Transactions[tx.ID] = tx
	}
	for _, remote := range ws.Wallets {
		w, ok := s.state.Wallets[remote.Currency]
		if !ok {
			w = &model.Wallet{ID: remote.ID, Currency: remote.Currency}
			s.state.Wallets[remote.Currency] = w
		}
		w.Balance = remote.Balance
		w.TransactionIDs = append([]string(nil), remote.TransactionIDs...)
	}
	s.mu.Unlock()
	s.notify()

	return nil
}

// SeedRewards загружает каталог наград. Уже выполненные награды остаются выполненными.
func (s *Store) SeedRewards(rewards []model.Reward) error {
	seen := make(map[string]struct{}, len(rewards))
	for _, r := range rewards {
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("reward %s: %w", r.ID, ErrDuplicate)
		}
		seen[r.ID] = struct{}{}
	}

	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	if err := s.alive(); err != nil {
		return err
	}

	s.mu.Lock()
	for _, r := range rewards {
		if existing, ok := s.state.Rewards[r.ID]; ok && existing.Completed {
			r.Completed = true
		}
		s.state.Rewards[r.ID] = r
	}
	s.mu.Unlock()
	s.notify()

	return nil
}

// AppendPriceTick добавляет отметку курса в конец последовательности.
func (s *Store) AppendPriceTick(tick model.PriceTick) error {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	if err := s.alive(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state.Prices = append(s.state.Prices, tick)
	if len(s.state.Prices) > maxPriceTicks {
		s.state.Prices = append([]model.PriceTick(nil), s.state.Prices[len(s.state.Prices)-maxPriceTicks:]...)
	}
	s.mu.Unlock()
	s.notify()

	return nil
}

// SetModalClipboardVisible управляет видимостью окна вставки из буфера обмена.
func (s *Store) SetModalClipboardVisible(visible bool) error {
	return s.setFlags(func(f *model.SessionFlags) { f.ModalClipboardVisible = visible })
}

// CompleteOnboarding отмечает, что пользователь прошёл приветственные экраны.
func (s *Store) CompleteOnboarding() error {
	return s.setFlags(func(f *model.SessionFlags) { f.Onboarded = true })
}

func (s *Store) setFlags(fn func(f *model.SessionFlags)) error {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	if err := s.alive(); err != nil {
		return err
	}

	s.mu.Lock()
	fn(&s.state.Flags)
	s.mu.Unlock()
	s.notify()

	return nil
}

// Dump пишет состояние целиком в лог на уровне debug.
func (s *Store) Dump() {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		s.logger.Error("dump state", zap.Error(err))
		return
	}
	s.logger.Debug("store state", zap.ByteString("state", data))
}

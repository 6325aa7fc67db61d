package store

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/wallet-store/internal/model"
)

// Rate — курс валюты в долларах за единицу.
// Fallback выставляется, когда реального курса нет и подставлена единица.
type Rate struct {
	Value    decimal.Decimal
	Fallback bool
}

// Rate возвращает курс: 1 для USD, цену сатоши по последнему тику для BTC.
func (s *Store) Rate(currency model.Currency) (Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLocked(currency)
}

func (s *Store) rateLocked(currency model.Currency) (Rate, error) {
	switch currency {
	case model.CurrencyUSD:
		return Rate{Value: decimal.NewFromInt(1)}, nil
	case model.CurrencyBTC:
		prices := s.state.Prices
		if len(prices) == 0 {
			return Rate{Value: decimal.NewFromInt(1), Fallback: true}, nil
		}
		v := prices[len(prices)-1].UsdPerSat()
		if v.IsZero() {
			return Rate{Value: decimal.NewFromInt(1), Fallback: true}, nil
		}
		return Rate{Value: v}, nil
	default:
		return Rate{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
}

// Balance возвращает баланс кошелька в указанной валюте.
func (s *Store) Balance(currency model.Currency) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balanceLocked(currency)
}

func (s *Store) balanceLocked(currency model.Currency) (decimal.Decimal, error) {
	w, ok := s.state.Wallets[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("wallet %s: %w", currency, ErrNotFound)
	}
	return w.Balance, nil
}

// Balances пересчитывает балансы в валюту currency и возвращает итог выбранного счёта.
// BankAndBitcoin всегда равен сумме Bank и Bitcoin.
func (s *Store) Balances(currency model.Currency, account model.AccountType) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	btcRate, err := s.rateLocked(model.CurrencyBTC)
	if err != nil {
		return decimal.Zero, err
	}
	rate, err := s.rateLocked(currency)
	if err != nil {
		return decimal.Zero, err
	}
	conversion := btcRate.Value.Div(rate.Value)

	btc, err := s.balanceLocked(model.CurrencyBTC)
	if err != nil {
		return decimal.Zero, err
	}
	usd, err := s.balanceLocked(model.CurrencyUSD)
	if err != nil {
		return decimal.Zero, err
	}

	bitcoin := btc.Mul(conversion)
	bank := usd.Div(rate.Value)

	switch account {
	case model.AccountBitcoin:
		return bitcoin, nil
	case model.AccountBank:
		return bank, nil
	case model.AccountBankAndBitcoin:
		return bank.Add(bitcoin), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}
}

// EarnedSat возвращает сумму выполненных наград в сатоши.
func (s *Store) EarnedSat() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, r := range s.state.Rewards {
		if r.Completed {
			total += r.Value
		}
	}
	return total
}

// Wallet возвращает копию кошелька в указанной валюте.
func (s *Store) Wallet(currency model.Currency) (model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.state.Wallets[currency]
	if !ok {
		return model.Wallet{}, fmt.Errorf("wallet %s: %w", currency, ErrNotFound)
	}
	c := *w
	c.TransactionIDs = append([]string(nil), w.TransactionIDs...)
	return c, nil
}

// ActiveUser возвращает текущего пользователя.
func (s *Store) ActiveUser() (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.state.Users[s.state.ActiveUserID]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", s.state.ActiveUserID, ErrNotFound)
	}
	return u, nil
}

// LoggedIn сообщает, есть ли у сессии действующий токен.
func (s *Store) LoggedIn() bool {
	return s.loggedIn()
}

// Transaction возвращает транзакцию по идентификатору.
func (s *Store) Transaction(id string) (model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.state.Transactions[id]
	if !ok {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return tx, nil
}

// Transactions возвращает транзакции кошелька в порядке его списка.
func (s *Store) Transactions(currency model.Currency) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.state.Wallets[currency]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", currency, ErrNotFound)
	}

	res := make([]model.Transaction, 0, len(w.TransactionIDs))
	for _, id := range w.TransactionIDs {
		tx, ok := s.state.Transactions[id]
		if !ok {
			return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		res = append(res, tx)
	}
	return res, nil
}

// Reward возвращает награду по идентификатору.
func (s *Store) Reward(id string) (model.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.state.Rewards[id]
	if !ok {
		return model.Reward{}, fmt.Errorf("reward %s: %w", id, ErrNotFound)
	}
	return r, nil
}

// Rewards возвращает все награды, упорядоченные по идентификатору.
func (s *Store) Rewards() []model.Reward {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]model.Reward, 0, len(s.state.Rewards))
	for _, r := range s.state.Rewards {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Flags возвращает флаги сессии.
func (s *Store) Flags() model.SessionFlags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Flags
}

// SettlementUSD возвращает сумму транзакции в долларах по курсу на момент расчёта.
// Если курс расчёта неизвестен, используется текущий курс BTC.
func (s *Store) SettlementUSD(id string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.state.Transactions[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}

	var usdPerSat decimal.Decimal
	if tx.SettlementPrice != nil {
		usdPerSat = tx.SettlementPrice.UsdPerSat()
	} else {
		r, err := s.rateLocked(model.CurrencyBTC)
		if err != nil {
			return decimal.Zero, err
		}
		usdPerSat = r.Value
	}
	return decimal.NewFromInt(tx.Amount).Mul(usdPerSat), nil
}

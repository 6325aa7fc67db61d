// Package model содержит доменные сущности клиентского хранилища кошелька.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency описывает код валюты кошелька.
type Currency string

const (
	CurrencyBTC Currency = "BTC"
	CurrencyUSD Currency = "USD"
)

// AccountType выбирает, какой из итоговых балансов вернуть.
type AccountType string

const (
	AccountBitcoin        AccountType = "Bitcoin"
	AccountBank           AccountType = "Bank"
	AccountBankAndBitcoin AccountType = "BankAndBitcoin"
)

// AnonymousUserID — идентификатор пользователя-заглушки до аутентификации.
const AnonymousUserID = "incognito"

// User представляет пользователя приложения.
type User struct {
	ID        string    `json:"id"`
	HasToken  bool      `json:"has_token"`
	CreatedAt time.Time `json:"created_at"`
}

// Wallet описывает кошелёк в одной валюте.
// Для BTC баланс хранится в сатоши и всегда целый.
type Wallet struct {
	ID             string          `json:"id"`
	Currency       Currency        `json:"currency"`
	Balance        decimal.Decimal `json:"balance"`
	TransactionIDs []string        `json:"transactions"`
}

// Direction описывает направление транзакции.
type Direction string

const (
	DirectionReceive Direction = "RECEIVE"
	DirectionSend    Direction = "SEND"
)

// TransactionStatus описывает статус транзакции.
type TransactionStatus string

const (
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusFailure TransactionStatus = "FAILURE"
)

// TransactionTypeEarn помечает локально созданную выплату за награду.
const TransactionTypeEarn = "earn"

// SettlementVia описывает способ расчёта по транзакции.
type SettlementVia string

const (
	SettlementOnChain     SettlementVia = "OnChain"
	SettlementLightning   SettlementVia = "Ln"
	SettlementIntraLedger SettlementVia = "IntraLedger"
)

// Settlement содержит сведения о расчёте; CounterPartyUsername заполняется только для внутренних переводов.
type Settlement struct {
	Via                  SettlementVia `json:"via"`
	CounterPartyUsername string        `json:"counter_party_username,omitempty"`
}

// Transaction описывает транзакцию кошелька. После создания не изменяется.
type Transaction struct {
	ID              string            `json:"id"`
	Amount          int64             `json:"amount"`
	Description     string            `json:"description"`
	CreatedAt       time.Time         `json:"created_at"`
	Settlement      Settlement        `json:"settlement"`
	SettlementPrice *PriceTick        `json:"settlement_price,omitempty"`
	Direction       Direction         `json:"direction"`
	Status          TransactionStatus `json:"status"`
	Type            string            `json:"type,omitempty"`
	RewardID        string            `json:"reward_id,omitempty"`
}

// Reward описывает одноразовую награду за обучающее задание.
type Reward struct {
	ID        string `json:"id"`
	Value     int64  `json:"value"`
	Completed bool   `json:"completed"`
}

// PriceTick — отметка курса BTC/USD. Цена сатоши в долларах равна Base / 10^Offset / 100.
type PriceTick struct {
	Timestamp time.Time `json:"ts"`
	Base      int64     `json:"base"`
	Offset    int32     `json:"offset"`
}

// UsdPerSat возвращает цену одного сатоши в долларах.
func (p PriceTick) UsdPerSat() decimal.Decimal {
	return decimal.New(p.Base, -p.Offset).Div(decimal.NewFromInt(100))
}

// SessionFlags содержит флаги, используемые только интерфейсом.
type SessionFlags struct {
	Onboarded             bool `json:"onboarded"`
	AccountRefresh        bool `json:"account_refresh"`
	ModalClipboardVisible bool `json:"modal_clipboard_visible"`
}

// State — полное состояние хранилища, единственный источник истины.
type State struct {
	Users        map[string]User        `json:"users"`
	ActiveUserID string                 `json:"active_user_id"`
	Wallets      map[Currency]*Wallet   `json:"wallets"`
	Transactions map[string]Transaction `json:"transactions"`
	Rewards      map[string]Reward      `json:"rewards"`
	Prices       []PriceTick            `json:"prices"`
	Flags        SessionFlags           `json:"flags"`
}

// Clone возвращает глубокую копию состояния.
func (s *State) Clone() *State {
	c := &State{
		Users:        make(map[string]User, len(s.Users)),
		ActiveUserID: s.ActiveUserID,
		Wallets:      make(map[Currency]*Wallet, len(s.Wallets)),
		Transactions: make(map[string]Transaction, len(s.Transactions)),
		Rewards:      make(map[string]Reward, len(s.Rewards)),
		Prices:       append([]PriceTick(nil), s.Prices...),
		Flags:        s.Flags,
	}
	for k, v := range s.Users {
		c.Users[k] = v
	}
	for k, w := range s.Wallets {
		if w == nil {
			continue
		}
		wc := *w
		wc.TransactionIDs = append([]string(nil), w.TransactionIDs...)
		c.Wallets[k] = &wc
	}
	for k, v := range s.Transactions {
		c.Transactions[k] = v
	}
	for k, v := range s.Rewards {
		c.Rewards[k] = v
	}
	return c
}

// WalletState — состояние кошельков, полученное с сервера.
type WalletState struct {
	Wallets      []Wallet
	Transactions []Transaction
}

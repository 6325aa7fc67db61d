// Package handler содержит HTTP-обработчики управляющего API хранилища кошелька.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/wallet-store/internal/model"
	"github.com/mmeshcher/wallet-store/internal/session"
	"github.com/mmeshcher/wallet-store/internal/store"
)

// Store определяет контракт хранилища, используемый HTTP-обработчиками.
type Store interface {
	Rate(currency model.Currency) (store.Rate, error)
	Balance(currency model.Currency) (decimal.Decimal, error)
	Balances(currency model.Currency, account model.AccountType) (decimal.Decimal, error)
	EarnedSat() int64
	Transactions(currency model.Currency) ([]model.Transaction, error)
	Rewards() []model.Reward
	Flags() model.SessionFlags
	CompleteReward(ctx context.Context, id string) error
	CompleteLogin(ctx context.Context, rawToken string) error
	Logout(ctx context.Context) error
	SetModalClipboardVisible(visible bool) error
	CompleteOnboarding() error
}

// Handler реализует HTTP-обработчики управляющего API.
type Handler struct {
	store   Store
	logger  *zap.Logger
	metrics http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов. metrics может быть nil.
func NewHandler(s Store, logger *zap.Logger, metrics http.Handler) *Handler {
	return &Handler{
		store:   s,
		logger:  logger,
		metrics: metrics,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrUnsupportedCurrency),
		errors.Is(err, store.ErrUnknownAccount),
		errors.Is(err, session.ErrInvalidToken):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrSessionExpired):
		status = http.StatusUnauthorized
	case errors.Is(err, store.ErrSyncFailure):
		status = http.StatusBadGateway
	case errors.Is(err, store.ErrClosed):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" error", zap.Error(err))
	}
	http.Error(w, http.StatusText(status), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type rateResponse struct {
	Currency string          `json:"currency"`
	Value    decimal.Decimal `json:"value"`
	Fallback bool            `json:"fallback"`
}

// GetRate возвращает курс валюты и признак подставленного значения.
func (h *Handler) GetRate(w http.ResponseWriter, r *http.Request) {
	currency := model.Currency(chi.URLParam(r, "currency"))

	rate, err := h.store.Rate(currency)
	if err != nil {
		h.writeError(w, "get rate", err)
		return
	}

	h.writeJSON(w, rateResponse{Currency: string(currency), Value: rate.Value, Fallback: rate.Fallback})
}

type balanceResponse struct {
	Currency string          `json:"currency"`
	Account  string          `json:"account,omitempty"`
	Balance  decimal.Decimal `json:"balance"`
}

// GetBalance возвращает баланс кошелька в указанной валюте.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	currency := model.Currency(chi.URLParam(r, "currency"))

	balance, err := h.store.Balance(currency)
	if err != nil {
		h.writeError(w, "get balance", err)
		return
	}

	h.writeJSON(w, balanceResponse{Currency: string(currency), Balance: balance})
}

// GetBalances возвращает пересчитанный итог счёта.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	currency := model.Currency(r.URL.Query().Get("currency"))
	if currency == "" {
		currency = model.CurrencyUSD
	}
	account := model.AccountType(r.URL.Query().Get("account"))
	if account == "" {
		account = model.AccountBankAndBitcoin
	}

	balance, err := h.store.Balances(currency, account)
	if err != nil {
		h.writeError(w, "get balances", err)
		return
	}

	h.writeJSON(w, balanceResponse{Currency: string(currency), Account: string(account), Balance: balance})
}

type earnedResponse struct {
	EarnedSat int64          `json:"earned_sat"`
	Rewards   []model.Reward `json:"rewards"`
}

// GetEarned возвращает сумму выполненных наград и каталог наград.
func (h *Handler) GetEarned(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, earnedResponse{EarnedSat: h.store.EarnedSat(), Rewards: h.store.Rewards()})
}

type transactionResponse struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Direction   string `json:"direction"`
	Status      string `json:"status"`
	Settlement  string `json:"settlement"`
	CreatedAt   string `json:"created_at"`
}

// GetTransactions возвращает транзакции кошелька.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	currency := model.Currency(r.URL.Query().Get("currency"))
	if currency == "" {
		currency = model.CurrencyBTC
	}

	txs, err := h.store.Transactions(currency)
	if err != nil {
		h.writeError(w, "get transactions", err)
		return
	}

	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, transactionResponse{
			ID:          tx.ID,
			Amount:      tx.Amount,
			Description: tx.Description,
			Direction:   string(tx.Direction),
			Status:      string(tx.Status),
			Settlement:  string(tx.Settlement.Via),
			CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, resp)
}

// CompleteReward отмечает награду выполненной.
func (h *Handler) CompleteReward(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.CompleteReward(r.Context(), id); err != nil {
		h.writeError(w, "complete reward", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	Token string `json:"token"`
}

// Login завершает вход: синхронизирует анонимный прогресс и очищает локальные транзакции.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Token == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.store.CompleteLogin(r.Context(), req.Token); err != nil {
		h.writeError(w, "login", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Logout завершает аутентифицированную сессию.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Logout(r.Context()); err != nil {
		h.writeError(w, "logout", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type clipboardRequest struct {
	Visible bool `json:"visible"`
}

// SetClipboardModal управляет видимостью окна вставки из буфера обмена.
func (h *Handler) SetClipboardModal(w http.ResponseWriter, r *http.Request) {
	var req clipboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.store.SetModalClipboardVisible(req.Visible); err != nil {
		h.writeError(w, "set clipboard modal", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// CompleteOnboarding отмечает прохождение приветственных экранов.
func (h *Handler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	if err := h.store.CompleteOnboarding(); err != nil {
		h.writeError(w, "complete onboarding", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetFlags возвращает флаги сессии.
func (h *Handler) GetFlags(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.store.Flags())
}

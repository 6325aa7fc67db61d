package backend

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/wallet-store/internal/model"
)

const (
	mutationEarnCompleted = `mutation earnCompleted($ids: [ID]) {
  earnCompleted(ids: $ids) { id value completed }
}`

	queryWallet = `query wallet {
  wallet {
    id currency balance
    transactions {
      id amount description createdAt direction status
      settlementVia counterPartyUsername
      settlementPrice { base offset }
    }
  }
}`

	queryEarnList = `query earnList {
  earnList { id value completed }
}`

	queryBtcPrice = `query btcPrice {
  btcPrice { base offset timestamp }
}`
)

type rewardDTO struct {
	ID        string `json:"id"`
	Value     int64  `json:"value"`
	Completed bool   `json:"completed"`
}

type priceDTO struct {
	Base      int64 `json:"base"`
	Offset    int32 `json:"offset"`
	Timestamp int64 `json:"timestamp"`
}

type transactionDTO struct {
	ID                   string    `json:"id"`
	Amount               int64     `json:"amount"`
	Description          string    `json:"description"`
	CreatedAt            int64     `json:"createdAt"`
	Direction            string    `json:"direction"`
	Status               string    `json:"status"`
	SettlementVia        string    `json:"settlementVia"`
	CounterPartyUsername string    `json:"counterPartyUsername"`
	SettlementPrice      *priceDTO `json:"settlementPrice"`
}

type walletDTO struct {
	ID           string           `json:"id"`
	Currency     string           `json:"currency"`
	Balance      decimal.Decimal  `json:"balance"`
	Transactions []transactionDTO `json:"transactions"`
}

func toRewards(dtos []rewardDTO) []model.Reward {
	res := make([]model.Reward, 0, len(dtos))
	for _, d := range dtos {
		res = append(res, model.Reward{ID: d.ID, Value: d.Value, Completed: d.Completed})
	}
	return res
}

// MutateRewardsCompleted отмечает награды выполненными для текущего аккаунта и возвращает их подтверждённое состояние.
func (c *Client) MutateRewardsCompleted(ctx context.Context, ids []string) ([]model.Reward, error) {
	var dtos []rewardDTO
	if err := c.do(ctx, mutationEarnCompleted, map[string]any{"ids": ids}, "earnCompleted", &dtos); err != nil {
		return nil, err
	}
	return toRewards(dtos), nil
}

// QueryRewards возвращает каталог наград.
func (c *Client) QueryRewards(ctx context.Context) ([]model.Reward, error) {
	var dtos []rewardDTO
	if err := c.do(ctx, queryEarnList, nil, "earnList", &dtos); err != nil {
		return nil, err
	}
	return toRewards(dtos), nil
}

// QueryPrice возвращает текущий курс BTC/USD.
func (c *Client) QueryPrice(ctx context.Context) (model.PriceTick, error) {
	var dto priceDTO
	if err := c.do(ctx, queryBtcPrice, nil, "btcPrice", &dto); err != nil {
		return model.PriceTick{}, err
	}

	ts := time.Now().UTC()
	if dto.Timestamp > 0 {
		ts = time.Unix(dto.Timestamp, 0).UTC()
	}
	return model.PriceTick{Timestamp: ts, Base: dto.Base, Offset: dto.Offset}, nil
}

// QueryWallet возвращает кошельки и транзакции аккаунта.
func (c *Client) QueryWallet(ctx context.Context) (*model.WalletState, error) {
	var dtos []walletDTO
	if err := c.do(ctx, queryWallet, nil, "wallet", &dtos); err != nil {
		return nil, err
	}

	state := &model.WalletState{}
	for _, w := range dtos {
		wallet := model.Wallet{
			ID:       w.ID,
			Currency: model.Currency(w.Currency),
			Balance:  w.Balance,
		}
		for _, t := range w.Transactions {
			tx := model.Transaction{
				ID:          t.ID,
				Amount:      t.Amount,
				Description: t.Description,
				CreatedAt:   time.Unix(t.CreatedAt, 0).UTC(),
				Settlement: model.Settlement{
					Via:                  model.SettlementVia(t.SettlementVia),
					CounterPartyUsername: t.CounterPartyUsername,
				},
				Direction: model.Direction(t.Direction),
				Status:    model.TransactionStatus(t.Status),
			}
			if t.SettlementPrice != nil {
				tx.SettlementPrice = &model.PriceTick{
					Timestamp: tx.CreatedAt,
					Base:      t.SettlementPrice.Base,
					Offset:    t.SettlementPrice.Offset,
				}
			}
			wallet.TransactionIDs = append(wallet.TransactionIDs, tx.ID)
			state.Transactions = append(state.Transactions, tx)
		}
		state.Wallets = append(state.Wallets, wallet)
	}

	return state, nil
}

// Package snapshot сериализует полное состояние хранилища в версионированный blob.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mmeshcher/wallet-store/internal/model"
)

// CurrentVersion — версия схемы, в которой пишутся новые снимки.
const CurrentVersion = 2

var (
	// ErrCorrupt возвращается, если blob не является корректным снимком.
	ErrCorrupt = errors.New("corrupt snapshot")
	// ErrUnsupportedVersion возвращается для версий, которые нельзя мигрировать.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)

type envelope struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	State   json.RawMessage `json:"state"`
}

// Encode сериализует состояние вместе с версией схемы.
func Encode(state *model.State, savedAt time.Time) ([]byte, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}

	data, err := json.Marshal(envelope{
		Version: CurrentVersion,
		SavedAt: savedAt.UTC(),
		State:   raw,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	return data, nil
}

// Decode восстанавливает состояние, при необходимости мигрируя старые версии.
func Decode(blob []byte) (*model.State, error) {
	if !gjson.ValidBytes(blob) {
		return nil, ErrCorrupt
	}

	version := gjson.GetBytes(blob, "version")
	if !version.Exists() {
		return nil, fmt.Errorf("%w: no version", ErrCorrupt)
	}

	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	switch env.Version {
	case CurrentVersion:
		var st model.State
		if err := json.Unmarshal(env.State, &st); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		dropNilWallets(st.Wallets)
		return &st, nil
	case 1:
		return migrateV1(env.State)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
}

// stateV1 — схема первой версии: активный пользователь не хранился,
// флаг онбординга лежал во вложенном объекте.
type stateV1 struct {
	Users        map[string]model.User            `json:"users"`
	Wallets      map[model.Currency]*model.Wallet `json:"wallets"`
	Transactions map[string]model.Transaction     `json:"transactions"`
	Rewards      map[string]model.Reward          `json:"rewards"`
	Prices       []model.PriceTick                `json:"prices"`
	Onboarding   struct {
		GetStarted bool `json:"getStarted"`
	} `json:"onboarding"`
	AccountRefresh        bool `json:"accountRefresh"`
	ModalClipboardVisible bool `json:"modalClipboardVisible"`
}

// migrateV1 выбирает активным единственного пользователя с токеном; иначе активен анонимный.
func migrateV1(raw json.RawMessage) (*model.State, error) {
	var old stateV1
	if err := json.Unmarshal(raw, &old); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	dropNilWallets(old.Wallets)

	active := model.AnonymousUserID
	var withToken []string
	for id, u := range old.Users {
		if u.HasToken {
			withToken = append(withToken, id)
		}
	}
	if len(withToken) == 1 {
		active = withToken[0]
	}

	return &model.State{
		Users:        old.Users,
		ActiveUserID: active,
		Wallets:      old.Wallets,
		Transactions: old.Transactions,
		Rewards:      old.Rewards,
		Prices:       old.Prices,
		Flags: model.SessionFlags{
			Onboarded:             old.Onboarding.GetStarted,
			AccountRefresh:        old.AccountRefresh,
			ModalClipboardVisible: old.ModalClipboardVisible,
		},
	}, nil
}

// dropNilWallets удаляет пустые записи кошельков; недостающие кошельки создаются заново при восстановлении.
func dropNilWallets(wallets map[model.Currency]*model.Wallet) {
	for c, w := range wallets {
		if w == nil {
			delete(wallets, c)
		}
	}
}

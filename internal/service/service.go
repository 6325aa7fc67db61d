// Package service связывает хранилище кошелька с удалённым сервисом вне действий пользователя.
package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mmeshcher/wallet-store/internal/model"
)

// Store описывает контракт хранилища, используемый сервисом.
type Store interface {
	Rewards() []model.Reward
	SeedRewards(rewards []model.Reward) error
	RefreshWallet(ctx context.Context) error
	LoggedIn() bool
	Flags() model.SessionFlags
	Subscribe() <-chan struct{}
}

// Catalog возвращает каталог наград.
type Catalog interface {
	QueryRewards(ctx context.Context) ([]model.Reward, error)
}

// Service выполняет фоновые задачи хранилища: первичную загрузку каталога наград
// и перечитывание кошелька после переключения флага AccountRefresh.
type Service struct {
	store   Store
	catalog Catalog
	logger  *zap.Logger
}

// NewService создаёт новый сервис. catalog может быть nil, если удалённый сервис не настроен.
func NewService(store Store, catalog Catalog, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		catalog: catalog,
		logger:  logger,
	}
}

// SeedCatalog загружает каталог наград, если в хранилище его ещё нет.
func (s *Service) SeedCatalog(ctx context.Context) error {
	if s.catalog == nil || len(s.store.Rewards()) > 0 {
		return nil
	}

	rewards, err := s.catalog.QueryRewards(ctx)
	if err != nil {
		return err
	}

	if err := s.store.SeedRewards(rewards); err != nil {
		return err
	}

	s.logger.Info("reward catalog seeded", zap.Int("rewards", len(rewards)))
	return nil
}

// StartAccountRefresh запускает фоновое перечитывание кошелька при старте и при каждом переключении AccountRefresh.
// Без действующего токена перечитывание пропускается.
func (s *Service) StartAccountRefresh(ctx context.Context) {
	changes := s.store.Subscribe()
	last := s.store.Flags().AccountRefresh

	go func() {
		s.refresh(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				current := s.store.Flags().AccountRefresh
				if current == last {
					continue
				}
				last = current
				s.refresh(ctx)
			}
		}
	}()
}

func (s *Service) refresh(ctx context.Context) {
	if !s.store.LoggedIn() {
		return
	}

	if err := s.store.RefreshWallet(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn("wallet refresh failed", zap.Error(err))
		return
	}

	s.logger.Info("wallet refreshed after account switch")
}

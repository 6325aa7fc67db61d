// Package pricefeed периодически запрашивает курс BTC и добавляет его в хранилище.
package pricefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mmeshcher/wallet-store/internal/model"
)

const pollTimeout = 10 * time.Second

// Source возвращает текущий курс.
type Source interface {
	QueryPrice(ctx context.Context) (model.PriceTick, error)
}

// Sink принимает новые отметки курса.
type Sink interface {
	AppendPriceTick(tick model.PriceTick) error
}

// Feed запускает опрос курса по расписанию cron.
type Feed struct {
	cron     *cron.Cron
	schedule string
	source   Source
	sink     Sink
	logger   *zap.Logger
}

// New создаёт опрос курса с расписанием schedule, например "@every 1m".
func New(source Source, sink Sink, schedule string, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		cron:     cron.New(),
		schedule: schedule,
		source:   source,
		sink:     sink,
		logger:   logger,
	}
}

// Start регистрирует задачу и запускает планировщик. Планировщик останавливается при отмене ctx.
func (f *Feed) Start(ctx context.Context) error {
	if _, err := f.cron.AddFunc(f.schedule, func() {
		if err := f.Poll(ctx); err != nil {
			f.logger.Warn("price poll failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule price feed %q: %w", f.schedule, err)
	}

	f.cron.Start()
	f.logger.Info("price feed started", zap.String("schedule", f.schedule))

	go func() {
		<-ctx.Done()
		<-f.cron.Stop().Done()
		f.logger.Info("price feed stopped")
	}()

	return nil
}

// Poll запрашивает курс один раз и добавляет его в хранилище.
func (f *Feed) Poll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	tick, err := f.source.QueryPrice(ctx)
	if err != nil {
		return fmt.Errorf("query price: %w", err)
	}
	if tick.Base <= 0 {
		return fmt.Errorf("query price: non-positive base %d", tick.Base)
	}

	if err := f.sink.AppendPriceTick(tick); err != nil {
		return fmt.Errorf("append price: %w", err)
	}
	return nil
}

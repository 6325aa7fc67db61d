// Package persistence сохраняет снимки хранилища и восстанавливает их при холодном старте.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mmeshcher/wallet-store/internal/model"
	"github.com/mmeshcher/wallet-store/internal/snapshot"
)

// StorageKey — фиксированный ключ снимка в долговременном хранилище.
const StorageKey = "rootAppGaloy"

const flushTimeout = 5 * time.Second

// Storage описывает долговременное хранилище blob-ов по ключу.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, blob []byte) error
}

// Source — хранилище, состояние которого сохраняется.
type Source interface {
	Snapshot() *model.State
	Subscribe() <-chan struct{}
	Restore(state *model.State)
}

// Controller подписывается на изменения хранилища и пишет снимки не чаще одного раза за throttle.
type Controller struct {
	source   Source
	storage  Storage
	throttle time.Duration
	logger   *zap.Logger
	changes  <-chan struct{}
	writes   *prometheus.CounterVec
	now      func() time.Time
}

// NewController создаёт контроллер и сразу подписывается на изменения, чтобы не пропустить ни одного.
func NewController(source Source, storage Storage, throttle time.Duration, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		source:   source,
		storage:  storage,
		throttle: throttle,
		logger:   logger,
		changes:  source.Subscribe(),
		writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletstore",
				Subsystem: "snapshot",
				Name:      "writes_total",
				Help:      "Number of snapshot writes by result",
			},
			[]string{"result"},
		),
		now: time.Now,
	}
}

// Collector возвращает метрики контроллера для регистрации.
func (c *Controller) Collector() prometheus.Collector {
	return c.writes
}

// Load загружает последний снимок в хранилище. Отсутствующий, повреждённый или
// немигрируемый снимок не является ошибкой: хранилище остаётся в состоянии по умолчанию.
func (c *Controller) Load(ctx context.Context) error {
	blob, ok, err := c.storage.Load(ctx, StorageKey)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		c.logger.Info("no snapshot found, starting fresh")
		return nil
	}

	state, err := snapshot.Decode(blob)
	if err != nil {
		if errors.Is(err, snapshot.ErrCorrupt) || errors.Is(err, snapshot.ErrUnsupportedVersion) {
			c.logger.Warn("snapshot discarded, starting fresh", zap.Error(err))
			return nil
		}
		return fmt.Errorf("decode snapshot: %w", err)
	}

	c.source.Restore(state)
	return nil
}

// Run пишет снимки по уведомлениям до отмены ctx или закрытия хранилища,
// после чего записывает финальный снимок.
func (c *Controller) Run(ctx context.Context) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case _, ok := <-c.changes:
			if !ok {
				return c.finalFlush()
			}
			if c.throttle <= 0 {
				c.flushAndLog(ctx)
				continue
			}
			if timer == nil {
				timer = time.NewTimer(c.throttle)
				fire = timer.C
			}
		case <-fire:
			timer, fire = nil, nil
			c.flushAndLog(ctx)
		case <-ctx.Done():
			return c.finalFlush()
		}
	}
}

func (c *Controller) finalFlush() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := c.Flush(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	c.logger.Info("final snapshot written")
	return nil
}

func (c *Controller) flushAndLog(ctx context.Context) {
	if err := c.Flush(ctx); err != nil {
		c.logger.Error("snapshot write failed", zap.Error(err))
	}
}

// Flush немедленно записывает текущее состояние.
func (c *Controller) Flush(ctx context.Context) error {
	blob, err := snapshot.Encode(c.source.Snapshot(), c.now())
	if err != nil {
		c.writes.WithLabelValues("error").Inc()
		return err
	}

	if err := c.storage.Save(ctx, StorageKey, blob); err != nil {
		c.writes.WithLabelValues("error").Inc()
		return fmt.Errorf("save snapshot: %w", err)
	}

	c.writes.WithLabelValues("ok").Inc()
	c.logger.Debug("snapshot written", zap.Int("bytes", len(blob)))
	return nil
}

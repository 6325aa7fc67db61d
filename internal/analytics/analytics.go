// Package analytics доставляет события аналитики, не блокируя вызывающего.
package analytics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Event — именованное событие с параметрами.
type Event struct {
	Name   string
	Params map[string]any
}

// Sink принимает события. Вызывается из единственной горутины диспетчера.
type Sink interface {
	Consume(ev Event)
}

// Dispatcher ставит события в буферизованную очередь и доставляет их всем приёмникам.
// При переполнении очереди событие отбрасывается.
type Dispatcher struct {
	queue   chan Event
	sinks   []Sink
	dropped atomic.Int64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// NewDispatcher создаёт диспетчер с очередью размера buffer и запускает доставку.
func NewDispatcher(buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}

	d := &Dispatcher{
		queue: make(chan Event, buffer),
		sinks: sinks,
		done:  make(chan struct{}),
	}
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		for _, s := range d.sinks {
			s.Consume(ev)
		}
	}
}

// LogEvent ставит событие в очередь без ожидания.
func (d *Dispatcher) LogEvent(name string, params map[string]any) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return
	}

	select {
	case d.queue <- Event{Name: name, Params: params}:
	default:
		d.dropped.Add(1)
	}
}

// Dropped возвращает число отброшенных событий.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close доставляет события, уже стоящие в очереди, и останавливает диспетчер.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	<-d.done
}

// ZapSink пишет события в лог.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink создаёт приёмник, пишущий в logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

// Consume пишет событие в лог на уровне info.
func (s *ZapSink) Consume(ev Event) {
	fields := make([]zap.Field, 0, len(ev.Params)+1)
	fields = append(fields, zap.String("event", ev.Name))
	for k, v := range ev.Params {
		fields = append(fields, zap.Any(k, v))
	}
	s.logger.Info("analytics event", fields...)
}

// PrometheusSink считает события по имени.
type PrometheusSink struct {
	events *prometheus.CounterVec
}

// NewPrometheusSink создаёт счётчик событий.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletstore",
				Subsystem: "analytics",
				Name:      "events_total",
				Help:      "Number of analytics events by name",
			},
			[]string{"event"},
		),
	}
}

// Consume увеличивает счётчик события.
func (s *PrometheusSink) Consume(ev Event) {
	s.events.WithLabelValues(ev.Name).Inc()
}

// Collector возвращает счётчик для регистрации.
func (s *PrometheusSink) Collector() prometheus.Collector {
	return s.events
}

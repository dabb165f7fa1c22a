package audit

/*
Файл eventlog.go реализует выходной канал событий диспетчера.

Ключевые особенности архитектуры:
- Non-blocking Logging: события из Hot Path движка уходят в буферизованный
  канал; задержки подписчиков (Postgres, внешние системы) не влияют на
  латентность диспетчеризации.
- Batching: накопление событий в памяти и пакетная доставка подписчикам
  по таймеру или при достижении лимита (100 событий).
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается до
  конца, последняя пачка доставляется, только потом воркер завершается.
- Pluggable Subscribers: подписчики регистрируются до Start и получают
  одинаковые пачки независимо; сбой одного не трогает остальных.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Subscriber получает пачки событий. Ошибка подписчика логируется и
// никогда не распространяется в движок.
type Subscriber interface {
	WriteBatch(ctx context.Context, events []DispatchEvent) error
}

const (
	defaultBufferSize = 10000
	eventBatchSize    = 100
	defaultFlushEvery = 500 * time.Millisecond
)

// EventLogConfig — емкость буфера и период пакетной доставки.
// Нулевые значения заменяются дефолтами.
type EventLogConfig struct {
	BufferSize    int
	FlushInterval time.Duration
}

type EventLog struct {
	ch         chan DispatchEvent
	subs       []Subscriber
	logger     *zap.Logger
	flushEvery time.Duration
	wg         sync.WaitGroup

	// Атомарный флаг (0 - открыт, 1 - закрыт): защита от Log после Stop.
	isClosed int32
}

func NewEventLog(cfg EventLogConfig, logger *zap.Logger, subs ...Subscriber) *EventLog {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushEvery
	}
	return &EventLog{
		ch:         make(chan DispatchEvent, cfg.BufferSize),
		subs:       subs,
		logger:     logger.With(zap.String("mod", "eventlog")),
		flushEvery: cfg.FlushInterval,
	}
}

func (l *EventLog) Start() {
	l.wg.Add(1)
	go l.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (l *EventLog) Stop() {
	atomic.StoreInt32(&l.isClosed, 1)

	// Крошечная пауза, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	l.logger.Info("stopping event log: closing channel and flushing buffer...")
	close(l.ch)
	l.wg.Wait()
	l.logger.Info("event log stopped gracefully")
}

func (l *EventLog) Log(event DispatchEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&l.isClosed) == 1 {
		l.logger.Warn("event dropped: log is stopping", zap.String("type", string(event.Type)))
		return
	}

	// Load Shedding: переполненный буфер не блокирует диспетчеризацию,
	// событие уходит хотя бы в структурный лог.
	select {
	case l.ch <- event:
	default:
		l.logger.Error("event_buffer_overflow",
			zap.String("type", string(event.Type)),
			zap.String("task_id", event.TaskID),
			zap.String("agent_type", event.AgentType),
		)
	}
}

// Depth — текущая заполненность буфера (для метрик).
func (l *EventLog) Depth() int {
	return len(l.ch)
}

func (l *EventLog) worker() {
	defer l.wg.Done()

	batch := make([]DispatchEvent, 0, eventBatchSize)
	ticker := time.NewTicker(l.flushEvery)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к моменту финального flush может быть закрыт
		for _, sub := range l.subs {
			if err := sub.WriteBatch(context.Background(), batch); err != nil {
				l.logger.Error("subscriber flush failed", zap.Error(err))
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-l.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитали остатки, финальный flush, выходим.
				flush()
				l.logger.Info("event log worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= eventBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// ZapSink — подписчик, дублирующий события в структурный лог.
// Используется как минимальный sink, когда Postgres не сконфигурирован.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.With(zap.String("mod", "events"))}
}

func (s *ZapSink) WriteBatch(_ context.Context, events []DispatchEvent) error {
	for _, e := range events {
		fields := []zap.Field{
			zap.String("event_id", e.ID),
			zap.String("task_id", e.TaskID),
			zap.String("agent_type", e.AgentType),
		}
		if e.Error != "" {
			fields = append(fields, zap.String("error", e.Error))
		}
		if e.DurationMs > 0 {
			fields = append(fields, zap.Int64("duration_ms", e.DurationMs))
		}
		s.logger.Info(string(e.Type), fields...)
	}
	return nil
}

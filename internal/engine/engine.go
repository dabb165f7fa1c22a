package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/devit-dispatch-prototype/internal/audit"
	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
	"go.uber.org/zap"
)

// AgentTransport доставляет задачу агенту. Своя политика таймаутов и
// ретраев — предохранитель в нее не входит.
type AgentTransport interface {
	Send(ctx context.Context, task domain.Task, agent domain.AgentDescriptor) (domain.TaskOutput, error)
}

// EventSink — выходной канал событий движка.
type EventSink interface {
	Log(event audit.DispatchEvent)
}

// TaskStore — необязательная персистентность жизненного цикла задач.
// Ошибки хранилища поглощаются: потеря записи не должна ронять диспетчеризацию.
type TaskStore interface {
	SaveTask(ctx context.Context, task domain.Task) error
	UpdateTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus, detail string) error
}

// Config — все ручки движка.
type Config struct {
	Breaker BreakerConfig

	MaxQueueSize int
	QueueTimeout time.Duration

	Sandbox SandboxPoolConfig

	DrainInterval   time.Duration
	HealthInterval  time.Duration
	MetricsInterval time.Duration

	// EMAAlpha — коэффициент сглаживания латентности: avg = α·x + (1-α)·avg
	EMAAlpha float64

	RestartTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Breaker:      DefaultBreakerConfig(),
		MaxQueueSize: 100,
		QueueTimeout: 5 * time.Minute,
		Sandbox: SandboxPoolConfig{
			MaxInstances:    10,
			InstanceTimeout: 10 * time.Minute,
			SweepInterval:   time.Minute,
		},
		DrainInterval:   2 * time.Second,
		HealthInterval:  30 * time.Second,
		MetricsInterval: 5 * time.Second,
		EMAAlpha:        0.1,
		RestartTimeout:  30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Options — внешние коллабораторы движка.
type Options struct {
	Transport   AgentTransport
	Probe       HealthProbe
	Provisioner SandboxProvisioner
	Events      EventSink
	Store       TaskStore       // nil — без персистентности
	Suspend     *SuspendManager // nil — без Control Plane
	Metrics     *Metrics        // nil — локальный реестр
	Logger      *zap.Logger
}

// ExecutionEngine — верхнеуровневый координатор: прием задач, маршрутизация,
// диспетчеризация или постановка в очередь, фоновые циклы.
type ExecutionEngine struct {
	cfg      Config
	runtimes map[string]*agentRuntime

	router    *AgentRouter
	health    *HealthRegistry
	queue     *PriorityTaskQueue
	sandboxes *SandboxPool

	transport AgentTransport
	events    EventSink
	store     TaskStore
	suspend   *SuspendManager
	metrics   *Metrics
	logger    *zap.Logger

	totalSubmitted uint64
	totalCompleted uint64
	totalFailed    uint64
	totalExpired   uint64

	inflight sync.WaitGroup
	isClosed int32 // Атомарный флаг (0 - работаем, 1 - останавливаемся)
	cancel   context.CancelFunc
	loops    sync.WaitGroup
}

func NewExecutionEngine(cfg Config, agents []domain.AgentDescriptor, opts Options) (*ExecutionEngine, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("at least one agent descriptor is required")
	}
	if opts.Transport == nil || opts.Probe == nil || opts.Provisioner == nil {
		return nil, fmt.Errorf("transport, probe and provisioner are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if cfg.EMAAlpha <= 0 || cfg.EMAAlpha > 1 {
		cfg.EMAAlpha = 0.1
	}

	e := &ExecutionEngine{
		cfg:       cfg,
		runtimes:  make(map[string]*agentRuntime, len(agents)),
		transport: opts.Transport,
		events:    opts.Events,
		store:     opts.Store,
		suspend:   opts.Suspend,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With(zap.String("mod", "engine")),
	}

	for _, desc := range agents {
		if desc.Type == "" || desc.MaxConcurrent <= 0 {
			return nil, fmt.Errorf("invalid agent descriptor %q", desc.Type)
		}
		if _, dup := e.runtimes[desc.Type]; dup {
			return nil, fmt.Errorf("duplicate agent type %q", desc.Type)
		}
		e.runtimes[desc.Type] = newAgentRuntime(desc, e.makeBreaker(desc.Type), cfg.EMAAlpha)
	}

	e.queue = NewPriorityTaskQueue(cfg.MaxQueueSize, cfg.QueueTimeout)
	e.sandboxes = NewSandboxPool(cfg.Sandbox, opts.Provisioner, opts.Events, opts.Logger)
	e.health = NewHealthRegistry(e.runtimes, opts.Probe, cfg.HealthInterval, opts.Events, opts.Logger)
	e.router = NewAgentRouter(e.runtimes, e.health, opts.Suspend, nil, opts.Logger)

	return e, nil
}

// makeBreaker создает предохранитель с подпиской на смену состояния:
// события + метрика. Используется и при рестарте агента.
func (e *ExecutionEngine) makeBreaker(agentType string) *AgentBreaker {
	return NewAgentBreaker(agentType, e.cfg.Breaker, func(agentType string, _, to gobreaker.State) {
		var (
			gauge float64
			event audit.EventType
		)
		switch to {
		case gobreaker.StateOpen:
			gauge, event = 2, audit.EventBreakerOpened
		case gobreaker.StateHalfOpen:
			gauge = 1
		default:
			gauge, event = 0, audit.EventBreakerClosed
		}
		e.metrics.CircuitBreakerState.WithLabelValues(agentType).Set(gauge)
		if event != "" {
			e.emit(audit.DispatchEvent{Type: event, AgentType: agentType})
		}
		e.logger.Info("circuit breaker state changed",
			zap.String("agent_type", agentType),
			zap.String("state", to.String()))
	})
}

// Start запускает фоновые циклы: health, drain, sandbox sweep, метрики.
// Каждый цикл независим — отказ одного тика не трогает остальные.
func (e *ExecutionEngine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.loops.Add(3)
	go func() {
		defer e.loops.Done()
		e.health.StartChecker(ctx)
	}()
	go func() {
		defer e.loops.Done()
		e.sandboxes.StartSweeper(ctx)
	}()
	go func() {
		defer e.loops.Done()
		e.drainLoop(ctx)
	}()

	if e.cfg.MetricsInterval > 0 {
		e.loops.Add(1)
		go func() {
			defer e.loops.Done()
			e.metricsLoop(ctx)
		}()
	}

	e.logger.Info("execution engine started",
		zap.Int("agents", len(e.runtimes)),
		zap.Int("max_queue", e.cfg.MaxQueueSize))
}

// ExecuteTask — основная входная точка: либо немедленная диспетчеризация
// с ожиданием результата, либо мгновенный ack с позицией в очереди.
func (e *ExecutionEngine) ExecuteTask(ctx context.Context, task domain.Task) (domain.ExecuteResult, error) {
	if atomic.LoadInt32(&e.isClosed) == 1 {
		return domain.ExecuteResult{}, ErrShuttingDown
	}

	if task.Type == "" {
		return domain.ExecuteResult{}, &ValidationError{Reason: "task type is required"}
	}
	if task.Priority == "" {
		task.Priority = domain.PriorityNormal
	}
	if !task.Priority.Valid() {
		return domain.ExecuteResult{}, &ValidationError{Reason: fmt.Sprintf("unknown priority %q", task.Priority)}
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now()
	}

	atomic.AddUint64(&e.totalSubmitted, 1)
	e.metrics.TasksSubmitted.WithLabelValues(task.Type, string(task.Priority)).Inc()
	e.saveTask(ctx, task)

	return e.submit(ctx, task)
}

// submit — общий путь для новых и передиспетчеризуемых задач.
func (e *ExecutionEngine) submit(ctx context.Context, task domain.Task) (domain.ExecuteResult, error) {
	rt, err := e.router.SelectAgent(task, "")
	if err != nil {
		e.countError(err)
		return domain.ExecuteResult{}, err
	}

	// Агент на пределе — в очередь, отправитель получает позицию сразу.
	if !rt.tryAcquire() {
		return e.enqueue(ctx, task)
	}

	result, err := e.dispatch(ctx, task, rt)
	if err == nil {
		return result, nil
	}

	// Ровно один failover: исключаем упавшего, выбираем заново.
	if !isFailoverable(err) {
		e.countError(err)
		return domain.ExecuteResult{}, err
	}

	next, selErr := e.router.SelectAgent(task, rt.desc.Type)
	if selErr != nil {
		e.countError(selErr)
		if errors.As(selErr, new(*AllAgentsFailedError)) {
			return domain.ExecuteResult{}, selErr
		}
		return domain.ExecuteResult{}, err
	}
	if !next.tryAcquire() {
		return e.enqueue(ctx, task)
	}

	e.logger.Warn("failover dispatch",
		zap.String("task_id", task.ID),
		zap.String("failed_agent", rt.desc.Type),
		zap.String("next_agent", next.desc.Type))

	result, err = e.dispatch(ctx, task, next)
	if err != nil {
		e.countError(err)
		return domain.ExecuteResult{}, err
	}
	return result, nil
}

// dispatch выполняет одну попытку на выбранном агенте. Слот уже занят
// вызывающим; здесь он гарантированно освобождается.
func (e *ExecutionEngine) dispatch(ctx context.Context, task domain.Task, rt *agentRuntime) (domain.ExecuteResult, error) {
	task.Attempts++

	// Песочница — до резервирования предохранителя: ее отказ не должен
	// засчитываться агенту.
	if rt.desc.RequiresSandbox {
		handle, err := e.sandboxes.GetOrCreate(ctx, task.ID, SandboxSpec{
			AgentType: rt.desc.Type,
			TaskType:  task.Type,
		})
		if err != nil {
			rt.release()
			e.finishTask(ctx, task, rt.desc.Type, 0, err)
			return domain.ExecuteResult{}, err
		}
		task.Workspace = handle.Workspace
	}

	settle, err := rt.breakerRef().Acquire()
	if err != nil {
		rt.release()
		return domain.ExecuteResult{}, err
	}

	started := time.Now()
	out, sendErr := e.transport.Send(ctx, task, rt.desc)
	latency := time.Since(started)

	// Settle — всегда, независимо от исхода: слот, предохранитель, EMA, событие.
	rt.release()
	settle(sendErr == nil)
	rt.recordOutcome(sendErr == nil, latency)

	status := "success"
	if sendErr != nil {
		status = "failed"
		rt.pushError(time.Now(), sendErr.Error())
	}
	e.metrics.DispatchDuration.WithLabelValues(rt.desc.Type, status).Observe(latency.Seconds())
	e.finishTask(ctx, task, rt.desc.Type, latency.Milliseconds(), sendErr)

	if sendErr != nil {
		return domain.ExecuteResult{}, sendErr
	}
	return domain.ExecuteResult{
		TaskID:  task.ID,
		Success: true,
		Result:  &out,
	}, nil
}

func (e *ExecutionEngine) enqueue(ctx context.Context, task domain.Task) (domain.ExecuteResult, error) {
	position, err := e.queue.Enqueue(task)
	if err != nil {
		e.countError(err)
		return domain.ExecuteResult{}, err
	}

	e.emit(audit.DispatchEvent{
		Type:   audit.EventTaskQueued,
		TaskID: task.ID,
		Detail: map[string]interface{}{"position": position, "priority": string(task.Priority)},
	})
	e.updateStatus(ctx, task.ID, domain.TaskStatusQueued, "")

	return domain.ExecuteResult{
		TaskID:        task.ID,
		Queued:        true,
		QueuePosition: position,
		EstimatedWait: e.EstimateWaitTime(position),
	}, nil
}

// finishTask закрывает жизненный цикл попытки: счетчики, событие, хранилище.
// При успешном failover терминальным считается только последний исход.
func (e *ExecutionEngine) finishTask(ctx context.Context, task domain.Task, agentType string, durationMs int64, err error) {
	if err == nil {
		atomic.AddUint64(&e.totalCompleted, 1)
		e.emit(audit.DispatchEvent{
			Type:       audit.EventTaskCompleted,
			TaskID:     task.ID,
			AgentType:  agentType,
			DurationMs: durationMs,
		})
		e.updateStatus(ctx, task.ID, domain.TaskStatusDone, "")
		return
	}

	atomic.AddUint64(&e.totalFailed, 1)
	e.emit(audit.DispatchEvent{
		Type:       audit.EventTaskFailed,
		TaskID:     task.ID,
		AgentType:  agentType,
		Error:      err.Error(),
		DurationMs: durationMs,
	})
	e.updateStatus(ctx, task.ID, domain.TaskStatusFailed, err.Error())
}

// isFailoverable: транспортный отказ или гонка с предохранителем —
// можно попробовать другого агента. Отказ песочницы фатален для задачи.
func isFailoverable(err error) bool {
	if errors.As(err, new(*SandboxProvisionError)) {
		return false
	}
	if errors.As(err, new(*CircuitOpenError)) {
		return true
	}
	var vErr *ValidationError
	return !errors.As(err, &vErr)
}

// drainLoop передиспетчеризует очередь по мере освобождения слотов.
func (e *ExecutionEngine) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.drainTick(ctx)
		}
	}
}

func (e *ExecutionEngine) drainTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("drain tick panic recovered", zap.Any("panic", r))
		}
	}()

	// Берем не больше, чем сейчас есть свободных слотов: это гарантирует,
	// что тик не крутит задачи вхолостую.
	free := e.router.FreeCapacity()
	if free <= 0 {
		return
	}

	ready, expired := e.queue.Drain(free)
	for _, task := range expired {
		e.expireTask(ctx, task)
	}

	for _, task := range ready {
		task := task
		e.inflight.Add(1)
		go func() {
			defer e.inflight.Done()
			// Одна попытка на тик: если слоты исчезли между подсчетом и
			// диспетчеризацией, submit вернет задачу в очередь до следующего тика.
			if _, err := e.submit(ctx, task); err != nil {
				e.logger.Warn("queued task redispatch failed",
					zap.String("task_id", task.ID),
					zap.Error(err))
				e.recoverQueuedTask(ctx, task, err)
			}
		}()
	}
}

// recoverQueuedTask не дает задаче из очереди исчезнуть молча: отправитель
// уже получил {queued} и ждет исхода. Ошибка маршрутизации возвращает задачу
// в очередь до следующего тика (SubmittedAt сохраняется, так что таймаут
// очереди по-прежнему ее ограничивает); невозможность вернуть — терминальный
// отказ с событием и статусом.
func (e *ExecutionEngine) recoverQueuedTask(ctx context.Context, task domain.Task, cause error) {
	if !isRoutingError(cause) {
		// Провалилась сама попытка вызова: dispatch уже закрыл задачу
		// терминальным событием и статусом.
		return
	}

	if _, err := e.enqueue(ctx, task); err == nil {
		return
	}

	atomic.AddUint64(&e.totalFailed, 1)
	e.emit(audit.DispatchEvent{
		Type:   audit.EventTaskFailed,
		TaskID: task.ID,
		Error:  cause.Error(),
	})
	e.updateStatus(ctx, task.ID, domain.TaskStatusFailed, cause.Error())
}

// isRoutingError — отказ до вызова агента: задача никому не отправлялась
// либо все кандидаты на повтор исчерпаны без нового вызова.
func isRoutingError(err error) bool {
	return errors.As(err, new(*NoCapableAgentError)) ||
		errors.As(err, new(*CircuitOpenError)) ||
		errors.As(err, new(*AllAgentsFailedError)) ||
		errors.As(err, new(*QueueFullError))
}

func (e *ExecutionEngine) expireTask(ctx context.Context, task domain.Task) {
	age := time.Since(task.SubmittedAt)
	atomic.AddUint64(&e.totalExpired, 1)
	e.metrics.ErrorTotal.WithLabelValues("expired").Inc()
	e.emit(audit.DispatchEvent{
		Type:   audit.EventTaskExpired,
		TaskID: task.ID,
		Error:  (&TaskExpiredError{TaskID: task.ID, Age: age}).Error(),
	})
	e.updateStatus(ctx, task.ID, domain.TaskStatusExpired, "queue timeout exceeded")
}

// EstimateWaitTime — консультативная оценка ожидания в очереди:
// ceil(position · avgProcessing / max(1, availableAgents)).
func (e *ExecutionEngine) EstimateWaitTime(position int) time.Duration {
	avg := e.averageProcessingMs()
	agents := e.router.AvailableAgents()
	if agents < 1 {
		agents = 1
	}
	ms := math.Ceil(float64(position) * avg / float64(agents))
	return time.Duration(ms) * time.Millisecond
}

// averageProcessingMs — средняя EMA-латентность по агентам с данными.
func (e *ExecutionEngine) averageProcessingMs() float64 {
	const defaultProcessingMs = 30000 // пока нет ни одного замера

	var sum float64
	var n int
	for _, rt := range e.runtimes {
		if v := rt.avgLatencyMs(); v > 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return defaultProcessingMs
	}
	return sum / float64(n)
}

// GetQueueStatus — снимок очереди ожидания.
func (e *ExecutionEngine) GetQueueStatus() domain.QueueStatus {
	return e.queue.Status()
}

// CancelQueuedTask отменяет только еще не диспетчеризованную задачу.
// In-flight вызов агента движок не прерывает — это задача таймаута транспорта.
func (e *ExecutionEngine) CancelQueuedTask(ctx context.Context, taskID string) error {
	if err := e.queue.Cancel(taskID); err != nil {
		return err
	}
	e.emit(audit.DispatchEvent{Type: audit.EventTaskCancelled, TaskID: taskID})
	e.updateStatus(ctx, taskID, domain.TaskStatusCancelled, "cancelled by caller")
	return nil
}

// GetAgentStatus — снимок состояния одного агента.
func (e *ExecutionEngine) GetAgentStatus(agentType string) (domain.AgentStatus, error) {
	rt, ok := e.runtimes[agentType]
	if !ok {
		return domain.AgentStatus{}, fmt.Errorf("unknown agent type %q", agentType)
	}
	return rt.snapshot(e.isSuspended(agentType)), nil
}

func (e *ExecutionEngine) GetAllAgentsStatus() []domain.AgentStatus {
	statuses := make([]domain.AgentStatus, 0, len(e.runtimes))
	for agentType, rt := range e.runtimes {
		statuses = append(statuses, rt.snapshot(e.isSuspended(agentType)))
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Type < statuses[j].Type })
	return statuses
}

func (e *ExecutionEngine) isSuspended(agentType string) bool {
	return e.suspend != nil && e.suspend.IsSuspended(agentType)
}

// GetMetrics — агрегированный снимок для Observability API.
func (e *ExecutionEngine) GetMetrics() domain.EngineMetrics {
	return domain.EngineMetrics{
		TotalSubmitted:  atomic.LoadUint64(&e.totalSubmitted),
		TotalCompleted:  atomic.LoadUint64(&e.totalCompleted),
		TotalFailed:     atomic.LoadUint64(&e.totalFailed),
		TotalExpired:    atomic.LoadUint64(&e.totalExpired),
		QueueDepth:      e.queue.Size(),
		ActiveSandboxes: e.sandboxes.Count(),
		Agents:          e.GetAllAgentsStatus(),
	}
}

// RestartAgent: вывести из ротации, дождаться нулевой загрузки (с таймаутом),
// принудительная проба, свежий закрытый предохранитель.
func (e *ExecutionEngine) RestartAgent(ctx context.Context, agentType string) error {
	rt, ok := e.runtimes[agentType]
	if !ok {
		return fmt.Errorf("unknown agent type %q", agentType)
	}

	rt.markHealth(false, time.Now())
	e.logger.Info("agent restart initiated", zap.String("agent_type", agentType))

	deadline := time.Now().Add(e.cfg.RestartTimeout)
	for rt.currentLoad() > 0 {
		if time.Now().After(deadline) {
			e.logger.Warn("agent restart proceeding with tasks still in flight",
				zap.String("agent_type", agentType),
				zap.Int("load", rt.currentLoad()))
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	rt.resetBreaker(e.makeBreaker(agentType))
	e.metrics.CircuitBreakerState.WithLabelValues(agentType).Set(0)
	e.health.ForceCheck(ctx, agentType)
	e.emit(audit.DispatchEvent{Type: audit.EventAgentRestarted, AgentType: agentType})
	return nil
}

// ForceHealthCheck пробрасывается в API.
func (e *ExecutionEngine) ForceHealthCheck(ctx context.Context, agentType string) {
	e.health.ForceCheck(ctx, agentType)
}

// Shutdown: остановить таймеры, отклонить очередь, дождаться in-flight
// в пределах таймаута, освободить песочницы.
func (e *ExecutionEngine) Shutdown(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&e.isClosed, 0, 1) {
		return
	}
	e.logger.Info("execution engine stopping...")

	if e.cancel != nil {
		e.cancel()
	}
	e.loops.Wait()

	// Очередь отклоняется: отправители получили позицию, теперь получат событие.
	for _, task := range e.queue.Flush() {
		e.emit(audit.DispatchEvent{
			Type:   audit.EventTaskCancelled,
			TaskID: task.ID,
			Error:  "engine shutdown",
		})
		e.updateStatus(ctx, task.ID, domain.TaskStatusCancelled, "engine shutdown")
	}

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(e.cfg.ShutdownTimeout):
		e.logger.Warn("shutdown timeout: abandoning in-flight tasks")
	}

	e.sandboxes.ReleaseAll(context.Background())
	e.logger.Info("execution engine stopped")
}

func (e *ExecutionEngine) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.metrics.QueueDepth.Set(float64(e.queue.Size()))
			e.metrics.ActiveSandboxes.Set(float64(e.sandboxes.Count()))
			if buffered, ok := e.events.(interface{ Depth() int }); ok {
				e.metrics.EventBufferFill.Set(float64(buffered.Depth()))
			}
		}
	}
}

func (e *ExecutionEngine) countError(err error) {
	switch {
	case errors.As(err, new(*QueueFullError)):
		e.metrics.ErrorTotal.WithLabelValues("queue_full").Inc()
	case errors.As(err, new(*NoCapableAgentError)):
		e.metrics.ErrorTotal.WithLabelValues("no_capable_agent").Inc()
	case errors.As(err, new(*CircuitOpenError)):
		e.metrics.ErrorTotal.WithLabelValues("circuit_open").Inc()
	case errors.As(err, new(*AllAgentsFailedError)):
		e.metrics.ErrorTotal.WithLabelValues("all_agents_failed").Inc()
	case errors.As(err, new(*SandboxProvisionError)):
		e.metrics.ErrorTotal.WithLabelValues("sandbox").Inc()
	default:
		e.metrics.ErrorTotal.WithLabelValues("transport").Inc()
	}
}

func (e *ExecutionEngine) emit(event audit.DispatchEvent) {
	if e.events == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.events.Log(event)
}

func (e *ExecutionEngine) saveTask(ctx context.Context, task domain.Task) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveTask(ctx, task); err != nil {
		e.logger.Warn("task persistence failed", zap.String("task_id", task.ID), zap.Error(err))
	}
}

func (e *ExecutionEngine) updateStatus(ctx context.Context, taskID string, status domain.TaskStatus, detail string) {
	if e.store == nil {
		return
	}
	if err := e.store.UpdateTaskStatus(ctx, taskID, status, detail); err != nil {
		e.logger.Warn("task status persistence failed", zap.String("task_id", taskID), zap.Error(err))
	}
}

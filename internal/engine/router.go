package engine

import (
	"sort"

	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
	"go.uber.org/zap"
)

// CapabilitySideEffects требуется агенту для задач с побочными эффектами
// (запись в репозиторий, запуск команд в рабочей среде).
const CapabilitySideEffects = "workspace.write"

// CapabilityRules — отображение типа задачи в базовые требуемые capabilities.
// Тип без правила требует одноименную capability.
type CapabilityRules map[string][]string

func DefaultCapabilityRules() CapabilityRules {
	return CapabilityRules{
		"code_review": {"code.review"},
		"codegen":     {"code.generate"},
		"validation":  {"code.validate"},
		"refactor":    {"code.generate", "code.review"},
	}
}

// AgentRouter подбирает агента под задачу: фильтр по capability,
// здоровью, приостановке и предохранителю, затем сортировка по
// (priority_weight, current_load). Загрузку по слотам фильтрует вызывающий.
type AgentRouter struct {
	runtimes map[string]*agentRuntime
	health   *HealthRegistry
	suspend  *SuspendManager // nil — control plane не подключен
	rules    CapabilityRules
	logger   *zap.Logger
}

func NewAgentRouter(runtimes map[string]*agentRuntime, health *HealthRegistry, suspend *SuspendManager, rules CapabilityRules, logger *zap.Logger) *AgentRouter {
	if rules == nil {
		rules = DefaultCapabilityRules()
	}
	return &AgentRouter{
		runtimes: runtimes,
		health:   health,
		suspend:  suspend,
		rules:    rules,
		logger:   logger.With(zap.String("mod", "router")),
	}
}

// RequiredCapabilities выводит требования из типа задачи и ее флагов.
func (r *AgentRouter) RequiredCapabilities(task domain.Task) []string {
	base, ok := r.rules[task.Type]
	if !ok {
		base = []string{task.Type}
	}

	required := make([]string, len(base))
	copy(required, base)
	if task.SideEffects {
		required = append(required, CapabilitySideEffects)
	}
	return required
}

// SelectAgent возвращает лучшего кандидата. exclude — тип агента,
// провалившего предыдущую попытку (ровно один failover, не рекурсия):
// пустая строка для первичного выбора.
func (r *AgentRouter) SelectAgent(task domain.Task, exclude string) (*agentRuntime, error) {
	required := r.RequiredCapabilities(task)

	// Фильтр 1: только по capability. Пустой результат здесь означает,
	// что задачу не умеет никто в принципе — в очередь она не пойдет.
	capable := make([]*agentRuntime, 0, len(r.runtimes))
	for _, rt := range r.runtimes {
		if rt.desc.HasCapabilities(required) {
			capable = append(capable, rt)
		}
	}
	if len(capable) == 0 {
		return nil, &NoCapableAgentError{TaskType: task.Type, Required: required}
	}

	// Фильтр 2: доступность. Запоминаем агента, отсеченного только
	// предохранителем — это дает точную ошибку при пустом результате.
	var breakerBlocked string
	eligible := make([]*agentRuntime, 0, len(capable))
	for _, rt := range capable {
		if rt.desc.Type == exclude {
			continue
		}
		if r.suspend != nil && r.suspend.IsSuspended(rt.desc.Type) {
			continue
		}
		if !rt.isHealthy() {
			continue
		}
		if !rt.breakerRef().Allows() {
			breakerBlocked = rt.desc.Type
			continue
		}
		eligible = append(eligible, rt)
	}

	if len(eligible) == 0 {
		if exclude != "" {
			return nil, &AllAgentsFailedError{TaskID: task.ID, Excluded: exclude}
		}
		if breakerBlocked != "" {
			return nil, &CircuitOpenError{AgentType: breakerBlocked}
		}
		return nil, &NoCapableAgentError{TaskType: task.Type, Required: required}
	}

	// Подсказка отправителя уважается, если кандидат прошел все фильтры.
	if task.PreferredAgent != "" {
		for _, rt := range eligible {
			if rt.desc.Type == task.PreferredAgent {
				return rt, nil
			}
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].desc.PriorityWeight != eligible[j].desc.PriorityWeight {
			return eligible[i].desc.PriorityWeight < eligible[j].desc.PriorityWeight
		}
		return eligible[i].currentLoad() < eligible[j].currentLoad()
	})

	return eligible[0], nil
}

// AvailableAgents — число агентов со свободными слотами (для оценки ожидания).
func (r *AgentRouter) AvailableAgents() int {
	count := 0
	for _, rt := range r.runtimes {
		if !rt.isHealthy() || !rt.breakerRef().Allows() {
			continue
		}
		if r.suspend != nil && r.suspend.IsSuspended(rt.desc.Type) {
			continue
		}
		if rt.currentLoad() < rt.desc.MaxConcurrent {
			count++
		}
	}
	return count
}

// FreeCapacity — суммарное число свободных слотов доступных агентов.
// Ограничивает размер пачки drain-цикла.
func (r *AgentRouter) FreeCapacity() int {
	total := 0
	for _, rt := range r.runtimes {
		if !rt.isHealthy() || !rt.breakerRef().Allows() {
			continue
		}
		if r.suspend != nil && r.suspend.IsSuspended(rt.desc.Type) {
			continue
		}
		if free := rt.desc.MaxConcurrent - rt.currentLoad(); free > 0 {
			total += free
		}
	}
	return total
}

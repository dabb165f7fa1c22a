package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims — полезная нагрузка RS256-токена внешнего контура авторизации.
// Dispatcher токены не выпускает, только проверяет.
type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "tasks.submit": true, "agents.manage": true
	jwt.RegisteredClaims
}

// Scope-константы для защищенных групп Dispatch API.
const (
	ScopeTasksSubmit  = "tasks.submit"
	ScopeTasksRead    = "tasks.read"
	ScopeAgentsManage = "agents.manage"
)

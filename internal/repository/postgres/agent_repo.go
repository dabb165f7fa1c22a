package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

// AgentRepo хранит операторское состояние агентов. Источник истины для
// приостановки: Redis-кэш прогревается отсюда при старте.
type AgentRepo struct {
	db *sql.DB
}

// NewAgentRepo создает новый экземпляр репозитория
func NewAgentRepo(connString string) *AgentRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &AgentRepo{db: db}
}

// GetSuspendedAgents возвращает типы всех приостановленных агентов.
func (r *AgentRepo) GetSuspendedAgents(ctx context.Context) ([]string, error) {
	query := `SELECT agent_type FROM agent_state WHERE suspended = TRUE`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query suspended agents: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan agent type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// SetAgentSuspended включает/выключает приостановку агента.
func (r *AgentRepo) SetAgentSuspended(ctx context.Context, agentType string, suspended bool) error {
	query := `INSERT INTO agent_state (agent_type, suspended, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (agent_type) DO UPDATE SET suspended = EXCLUDED.suspended, updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query, agentType, suspended)
	if err != nil {
		return fmt.Errorf("postgres: failed to set suspended state: %w", err)
	}
	return nil
}

// Ping проверяет доступность базы при старте
func (r *AgentRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

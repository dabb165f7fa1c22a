package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

type TaskRepo struct {
	db *sql.DB
}

func NewTaskRepo(connString string) *TaskRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &TaskRepo{db: db}
}

// SaveTask фиксирует принятую задачу. Повторная отправка того же ID
// обновляет счетчик попыток, не плодя строки.
func (r *TaskRepo) SaveTask(ctx context.Context, task domain.Task) error {
	payload, _ := json.Marshal(task.Payload)

	query := `INSERT INTO tasks (id, type, priority, payload, side_effects, preferred_agent, status, attempts, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'accepted', $7, $8)
		ON CONFLICT (id) DO UPDATE SET attempts = EXCLUDED.attempts, updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.Type, string(task.Priority), payload,
		task.SideEffects, task.PreferredAgent, task.Attempts, task.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save task: %w", err)
	}
	return nil
}

// UpdateTaskStatus переводит задачу в новый статус жизненного цикла.
func (r *TaskRepo) UpdateTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus, detail string) error {
	query := `UPDATE tasks SET status = $1, status_detail = $2, updated_at = NOW() WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, string(status), detail, taskID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update task status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("postgres: task %s not found", taskID)
	}
	return nil
}

// Ping проверяет доступность базы при старте
func (r *TaskRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

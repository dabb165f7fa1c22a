package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xela07ax/devit-dispatch-prototype/internal/audit"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(connString string) *EventRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &EventRepo{db: db}
}

// WriteBatch — пакетная вставка событий диспетчеризации одним запросом.
func (r *EventRepo) WriteBatch(ctx context.Context, events []audit.DispatchEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице dispatch_events
	numFields := 8
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8)

		detail, _ := json.Marshal(e.Detail)

		vals = append(vals,
			e.ID, string(e.Type), e.TaskID, e.AgentType,
			detail, e.Error, e.DurationMs, e.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO dispatch_events (id, type, task_id, agent_type, detail, error, duration_ms, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

// RecentByTask — последние события задачи, новые первыми.
func (r *EventRepo) RecentByTask(ctx context.Context, taskID string, limit int) ([]audit.DispatchEvent, error) {
	query := `SELECT id, type, task_id, agent_type, detail, error, duration_ms, timestamp
		FROM dispatch_events WHERE task_id = $1 ORDER BY timestamp DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []audit.DispatchEvent
	for rows.Next() {
		var e audit.DispatchEvent
		var eventType string
		var detail []byte
		if err := rows.Scan(&e.ID, &eventType, &e.TaskID, &e.AgentType, &detail, &e.Error, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan event: %w", err)
		}
		e.Type = audit.EventType(eventType)
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &e.Detail)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Ping проверяет доступность базы при старте
func (r *EventRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

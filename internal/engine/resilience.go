package engine

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SubscribeResilient — "живучая" подписка на управляющие сигналы Redis.
// Обрабатывает переподключения, при каждом новом коннекте вызывает
// onReconnect для ресинхронизации состояния.
func SubscribeResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onReconnect func() error, // Синхронизация при (пере)подключении
	onSignal func(agentType string, enabled bool), // Обработка сигнала
) {
	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		if err := onReconnect(); err != nil {
			logger.Error("state sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				// Формат "agent_type:status"
				agentType, rawStatus, found := strings.Cut(msg.Payload, ":")
				if !found || agentType == "" {
					logger.Error("invalid signal format", zap.String("payload", msg.Payload))
					continue
				}

				enabled := rawStatus == "true" || rawStatus == "on"
				onSignal(agentType, enabled)
			}
		}

		pubsub.Close()
		time.Sleep(time.Second)
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// PubSubProvider определяет интерфейс для провайдеров публикации/подписки
type PubSubProvider interface {
	// Publish публикует сообщение в указанный канал
	Publish(channel string, message []byte) error

	// Subscribe подписывается на указанный канал и возвращает канал для сообщений
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)

	// Close закрывает все соединения и освобождает ресурсы
	Close() error
}

// mirrorEnvelope - событие комнаты, передаваемое между экземплярами сервера.
// Адресат события не сериализуется в само событие, поэтому переносится здесь.
type mirrorEnvelope struct {
	InstanceID  string          `json:"instance_id"`
	RoomID      uint            `json:"room_id"`
	TeacherOnly bool            `json:"teacher_only,omitempty"`
	TargetID    string          `json:"target_id,omitempty"`
	Message     json.RawMessage `json:"message"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NoOpPubSub реализует PubSubProvider для одиночного режима работы.
// Используется, когда горизонтальное масштабирование отключено.
type NoOpPubSub struct{}

// Publish реализует метод PubSubProvider.Publish для NoOpPubSub
func (p *NoOpPubSub) Publish(channel string, message []byte) error {
	return nil
}

// Subscribe реализует метод PubSubProvider.Subscribe для NoOpPubSub
func (p *NoOpPubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	// Возвращаем пустой канал, который никогда не получит сообщения
	msgCh := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(msgCh)
	}()
	return msgCh, nil
}

// Close реализует метод PubSubProvider.Close для NoOpPubSub
func (p *NoOpPubSub) Close() error {
	return nil
}

// EventMirror зеркалирует события комнат между экземплярами сервера через Pub/Sub.
// Комната живет на одном экземпляре, но клиенты могут подключаться к любому:
// зеркало доставляет события комнаты клиентам на остальных узлах.
type EventMirror struct {
	hub        *RoomHub
	provider   PubSubProvider
	channel    string
	instanceID string
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewEventMirror создает зеркало событий поверх указанного провайдера.
// Если provider == nil, используется NoOpPubSub (одиночный режим).
func NewEventMirror(hub *RoomHub, provider PubSubProvider, channel string) *EventMirror {
	if provider == nil {
		log.Println("[EventMirror] Провайдер Pub/Sub не предоставлен, используется NoOpPubSub")
		provider = &NoOpPubSub{}
	}
	if channel == "" {
		channel = "room_events"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventMirror{
		hub:        hub,
		provider:   provider,
		channel:    channel,
		instanceID: "instance_" + uuid.NewString(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start запускает прием зеркалируемых событий от других экземпляров
func (m *EventMirror) Start() error {
	msgCh, err := m.provider.Subscribe(m.ctx, m.channel)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", m.channel, err)
	}
	log.Printf("[EventMirror] Экземпляр %s подписан на канал %s", m.instanceID, m.channel)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.receiveLoop(msgCh)
	}()
	return nil
}

// Stop останавливает зеркалирование
func (m *EventMirror) Stop() {
	m.cancel()
	m.wg.Wait()
}

// PublishBatch отправляет пачку событий в кластер.
// Вызывается хабом после локальной доставки.
func (m *EventMirror) PublishBatch(batch []outboundEvent) {
	for _, ev := range batch {
		env := mirrorEnvelope{
			InstanceID:  m.instanceID,
			RoomID:      ev.roomID,
			TeacherOnly: ev.teacherOnly,
			TargetID:    ev.targetID,
			Message:     ev.message,
			Timestamp:   time.Now(),
		}
		data, err := json.Marshal(env)
		if err != nil {
			log.Printf("[EventMirror] Ошибка сериализации конверта: %v", err)
			continue
		}
		if err := m.provider.Publish(m.channel, data); err != nil {
			log.Printf("[EventMirror] Ошибка публикации в %s: %v", m.channel, err)
		}
	}
}

func (m *EventMirror) receiveLoop(msgCh <-chan []byte) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				log.Println("[EventMirror] Канал зеркалируемых событий закрыт")
				return
			}

			var env mirrorEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Printf("[EventMirror] Ошибка десериализации конверта: %v", err)
				continue
			}

			// Пропускаем события от самого себя
			if env.InstanceID == m.instanceID {
				continue
			}

			m.hub.deliverRemote(outboundEvent{
				roomID:      env.RoomID,
				teacherOnly: env.TeacherOnly,
				targetID:    env.TargetID,
				message:     env.Message,
			})
		}
	}
}

// RedisPubSub реализует PubSubProvider с использованием Redis
type RedisPubSub struct {
	client redis.UniversalClient
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedisPubSub создает Redis Pub/Sub провайдер поверх существующего клиента
func NewRedisPubSub(client redis.UniversalClient) (*RedisPubSub, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil for RedisPubSub")
	}

	// Проверяем соединение клиента перед использованием
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("provided redis client failed ping check: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RedisPubSub{client: client, ctx: ctx, cancel: cancel}, nil
}

// Publish публикует сообщение в указанный канал
func (p *RedisPubSub) Publish(channel string, message []byte) error {
	cmd := p.client.Publish(p.ctx, channel, message)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe подписывается на указанный канал Redis
func (p *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := p.client.Subscribe(p.ctx, channel)

	// Ждем подтверждения подписки
	if _, err := pubsub.Receive(p.ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to Redis channel %s: %w", channel, err)
	}
	log.Printf("[RedisPubSub] Подписка на канал '%s' установлена", channel)

	msgCh := make(chan []byte, 100)
	go func() {
		defer func() {
			pubsub.Close()
			close(msgCh)
		}()

		redisCh := pubsub.Channel()
		for {
			select {
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case msgCh <- []byte(msg.Payload):
				default:
					log.Printf("[RedisPubSub] Буфер подписчика канала '%s' переполнен, сообщение потеряно", channel)
				}
			case <-p.ctx.Done():
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgCh, nil
}

// Close останавливает все подписки
func (p *RedisPubSub) Close() error {
	p.cancel()
	return nil
}

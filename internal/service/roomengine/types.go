package roomengine

import (
	"time"

	"github.com/yourusername/classquiz-api/internal/domain/repository"
)

// Константы значений по умолчанию
const (
	DefaultActorQueueSize  = 256
	DefaultMaxParticipants = 30
)

// Config содержит настройки движка комнат
type Config struct {
	// Размер очереди команд одной комнаты. При переполнении очереди
	// отправка команды блокируется до освобождения места или отмены контекста.
	ActorQueueSize int

	// Grace-окно переподключения: пока оно открыто, обрыв связи
	// не считается выходом из комнаты.
	ReconnectGrace time.Duration

	// Сколько держать завершенную комнату в реестре,
	// чтобы опоздавшие команды получали ErrRoomClosed, а не ErrNotFound.
	EndedCooldown time.Duration

	// Через сколько закрывать комнату, которая так и не вышла из лобби.
	IdleWaitingTimeout time.Duration

	// Интервал сборщика мусора реестра
	GCInterval time.Duration

	// Повторные попытки финальной записи результатов
	PersistMaxRetries int
	PersistBackoff    time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		ActorQueueSize:     DefaultActorQueueSize,
		ReconnectGrace:     30 * time.Second,
		EndedCooldown:      5 * time.Minute,
		IdleWaitingTimeout: 60 * time.Minute,
		GCInterval:         time.Minute,
		PersistMaxRetries:  5,
		PersistBackoff:     2 * time.Second,
	}
}

// Broadcaster доставляет события комнаты подключенным клиентам.
// Реализуется websocket-хабом. Доставка не должна блокировать
// вызывающую горутину: медленные получатели отключаются, а не тормозят комнату.
type Broadcaster interface {
	// BroadcastToRoom доставляет пачку событий с учетом адресата каждого события
	BroadcastToRoom(roomID uint, events []Event)
	// DisconnectParticipant принудительно закрывает подключение участника (kick)
	DisconnectParticipant(roomID uint, participantID string, reason string)
}

// PresenceStore хранит маркеры присутствия, переживающие процесс.
// Grace-маркеры позволяют опознать возвращающегося участника даже после
// перезапуска: память актора пуста, а маркер в Redis еще жив.
// Реализуется redis-репозиторием; в тестах подменяется заглушкой.
type PresenceStore interface {
	MarkDisconnected(roomID uint, participantID string, grace time.Duration) error
	ClearDisconnected(roomID uint, participantID string) error
	IsWithinGrace(roomID uint, participantID string) (bool, error)
	IncrOccupancy(roomID uint) (int64, error)
	DecrOccupancy(roomID uint) (int64, error)
	ClearRoom(roomID uint) error
}

// Dependencies содержит зависимости движка комнат
type Dependencies struct {
	RoomRepo     repository.RoomRepository
	QuizRepo     repository.QuizRepository
	QuestionRepo repository.QuestionRepository
	ResultRepo   repository.ResultRepository
	Presence     PresenceStore
	Broadcaster  Broadcaster
	Config       *Config
}

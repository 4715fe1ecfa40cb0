package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// PresenceRepo хранит в Redis маркеры присутствия участников:
// grace-окна переподключения и счетчики занятости комнат.
// Движок комнаты опирается на эти маркеры при решении, считать ли
// вернувшегося участника переподключившимся.
type PresenceRepo struct {
	client redis.UniversalClient
	ctx    context.Context
}

// NewPresenceRepo создает новый репозиторий присутствия
func NewPresenceRepo(client redis.UniversalClient) (*PresenceRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis client cannot be nil for PresenceRepo")
	}
	return &PresenceRepo{
		client: client,
		ctx:    context.Background(),
	}, nil
}

func graceKey(roomID uint, participantID string) string {
	return fmt.Sprintf("room:%d:grace:%s", roomID, participantID)
}

func occupancyKey(roomID uint) string {
	return fmt.Sprintf("room:%d:occupancy", roomID)
}

// MarkDisconnected открывает grace-окно переподключения для участника.
// Пока ключ жив, возвращение участника считается переподключением,
// а не новым входом.
func (r *PresenceRepo) MarkDisconnected(roomID uint, participantID string, grace time.Duration) error {
	return r.client.Set(r.ctx, graceKey(roomID, participantID), time.Now().Unix(), grace).Err()
}

// ClearDisconnected закрывает grace-окно (участник вернулся или удален)
func (r *PresenceRepo) ClearDisconnected(roomID uint, participantID string) error {
	return r.client.Del(r.ctx, graceKey(roomID, participantID)).Err()
}

// IsWithinGrace проверяет, открыто ли еще grace-окно участника
func (r *PresenceRepo) IsWithinGrace(roomID uint, participantID string) (bool, error) {
	result, err := r.client.Exists(r.ctx, graceKey(roomID, participantID)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// IncrOccupancy атомарно увеличивает счетчик занятости комнаты
func (r *PresenceRepo) IncrOccupancy(roomID uint) (int64, error) {
	return r.client.Incr(r.ctx, occupancyKey(roomID)).Result()
}

// DecrOccupancy атомарно уменьшает счетчик занятости комнаты
func (r *PresenceRepo) DecrOccupancy(roomID uint) (int64, error) {
	return r.client.Decr(r.ctx, occupancyKey(roomID)).Result()
}

// Occupancy возвращает текущий счетчик занятости комнаты.
// Счетчик ведет актор комнаты; читается он на экране входа, в том числе
// инстансом, которому комната не принадлежит.
func (r *PresenceRepo) Occupancy(roomID uint) (int64, error) {
	result, err := r.client.Get(r.ctx, occupancyKey(roomID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return result, nil
}

// ClearRoom удаляет все маркеры комнаты после ее завершения
func (r *PresenceRepo) ClearRoom(roomID uint) error {
	if err := r.client.Del(r.ctx, occupancyKey(roomID)).Err(); err != nil {
		return err
	}
	// Ключи grace удаляются по TTL, но подчищаем явно, чтобы не ждать
	pattern := fmt.Sprintf("room:%d:grace:*", roomID)
	keys, err := r.client.Keys(r.ctx, pattern).Result()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.client.Del(r.ctx, keys...).Err()
	}
	return nil
}

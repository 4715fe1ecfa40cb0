package repository

import (
	"github.com/yourusername/classquiz-api/internal/domain/entity"
)

// RoomRepository определяет методы для работы с комнатами
type RoomRepository interface {
	Create(room *entity.Room) error
	GetByID(id uint) (*entity.Room, error)
	GetByAccessCode(code string) (*entity.Room, error)
	Update(room *entity.Room) error
	// UpdateStatus точечно обновляет статус и отметки времени без full Save
	UpdateStatus(roomID uint, status string) error
	ListByOwner(ownerID uint, limit, offset int) ([]entity.Room, int64, error)
	Delete(id uint) error
}

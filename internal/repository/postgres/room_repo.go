package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/classquiz-api/internal/domain/entity"
	apperrors "github.com/yourusername/classquiz-api/internal/pkg/errors"
)

// RoomRepo реализует repository.RoomRepository
type RoomRepo struct {
	db *gorm.DB
}

// NewRoomRepo создает новый репозиторий комнат
func NewRoomRepo(db *gorm.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// Create создает новую комнату. Конфликт уникального access_code
// транслируется в ErrConflict, чтобы вызывающий мог сгенерировать новый код.
func (r *RoomRepo) Create(room *entity.Room) error {
	err := r.db.Create(room).Error
	if err != nil && isUniqueViolation(err) {
		return apperrors.ErrConflict
	}
	return err
}

// GetByID возвращает комнату по ID
func (r *RoomRepo) GetByID(id uint) (*entity.Room, error) {
	var room entity.Room
	err := r.db.First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// GetByAccessCode возвращает комнату по короткому коду доступа
func (r *RoomRepo) GetByAccessCode(code string) (*entity.Room, error) {
	var room entity.Room
	err := r.db.Where("access_code = ?", code).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// Update обновляет комнату целиком
func (r *RoomRepo) Update(room *entity.Room) error {
	return r.db.Save(room).Error
}

// UpdateStatus точечно обновляет статус и отметки времени без full Save
func (r *RoomRepo) UpdateStatus(roomID uint, status string) error {
	updates := map[string]interface{}{"status": status}
	now := time.Now()
	switch status {
	case entity.RoomStatusActive:
		updates["started_at"] = &now
	case entity.RoomStatusEnded:
		updates["ended_at"] = &now
	}
	result := r.db.Model(&entity.Room{}).Where("id = ?", roomID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ListByOwner возвращает комнаты учителя с пагинацией
func (r *RoomRepo) ListByOwner(ownerID uint, limit, offset int) ([]entity.Room, int64, error) {
	var rooms []entity.Room
	var total int64

	if err := r.db.Model(&entity.Room{}).Where("owner_id = ?", ownerID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rooms).Error
	if err != nil {
		return nil, 0, err
	}
	return rooms, total, nil
}

// Delete удаляет комнату
func (r *RoomRepo) Delete(id uint) error {
	return r.db.Delete(&entity.Room{}, id).Error
}

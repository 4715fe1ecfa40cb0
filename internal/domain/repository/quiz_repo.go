package repository

import (
	"github.com/yourusername/classquiz-api/internal/domain/entity"
)

// QuizRepository определяет методы для работы с викторинами
type QuizRepository interface {
	Create(quiz *entity.Quiz) error
	GetByID(id uint) (*entity.Quiz, error)
	// GetWithQuestions загружает викторину вместе со всеми вопросами,
	// включая скрытые от клиента правильные варианты.
	GetWithQuestions(id uint) (*entity.Quiz, error)
	Update(quiz *entity.Quiz) error
	ListByOwner(ownerID uint, limit, offset int) ([]entity.Quiz, int64, error)
	Delete(id uint) error
}

package entity

import (
	"time"
)

// Quiz представляет набор вопросов, из которого учитель запускает комнаты.
// Содержимое викторины загружается из хранилища при старте комнаты
// и далее не меняется до конца сессии.
type Quiz struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	OwnerID       uint       `gorm:"not null;index" json:"owner_id"`
	Title         string     `gorm:"size:100;not null" json:"title"`
	Description   string     `gorm:"size:500;not null;default:''" json:"description"`
	QuestionCount int        `gorm:"not null;default:0" json:"question_count"`
	Questions     []Question `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Quiz) TableName() string {
	return "quizzes"
}

// HasQuestions проверяет, есть ли в викторине хотя бы один вопрос.
// Комнату по пустой викторине запустить нельзя.
func (q *Quiz) HasQuestions() bool {
	return len(q.Questions) > 0
}

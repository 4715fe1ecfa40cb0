package entity

import (
	"time"
)

// Состояния подключения участника
const (
	ConnectionStateConnected    = "connected"
	ConnectionStateDisconnected = "disconnected"
)

// Роли в комнате
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Participant представляет участника комнаты. Идентичность участника
// живет дольше, чем отдельное websocket-подключение: при обрыве связи
// участник помечается disconnected, а его счет и ответы сохраняются.
type Participant struct {
	ID              string             `gorm:"primaryKey;size:36" json:"id"`
	RoomID          uint               `gorm:"not null;index" json:"room_id"`
	UserID          uint               `gorm:"not null;index" json:"user_id"`
	DisplayName     string             `gorm:"size:50;not null" json:"display_name"`
	Role            string             `gorm:"size:10;not null;default:'student'" json:"role"`
	ConnectionState string             `gorm:"size:15;not null;default:'connected'" json:"connection_state"`
	Kicked          bool               `gorm:"not null;default:false" json:"kicked"`
	Score           int                `gorm:"not null;default:0" json:"score"`
	CorrectAnswers  int                `gorm:"not null;default:0" json:"correct_answers"`
	JoinedAt        time.Time          `gorm:"not null" json:"joined_at"`
	Answers         []AnswerSubmission `gorm:"foreignKey:ParticipantID" json:"answers,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Participant) TableName() string {
	return "participants"
}

// IsConnected проверяет, есть ли у участника живое подключение
func (p *Participant) IsConnected() bool {
	return p.ConnectionState == ConnectionStateConnected
}

// IsTeacher проверяет, является ли участник учителем комнаты
func (p *Participant) IsTeacher() bool {
	return p.Role == RoleTeacher
}

// HasAnswered проверяет, отвечал ли участник на данный вопрос
func (p *Participant) HasAnswered(questionID uint) bool {
	for i := range p.Answers {
		if p.Answers[i].QuestionID == questionID {
			return true
		}
	}
	return false
}

// ReplayScore пересчитывает счет и количество правильных ответов
// по сохраненным ответам. Используется как проверка инварианта
// перед финальной записью результатов.
func (p *Participant) ReplayScore() (score int, correct int) {
	for i := range p.Answers {
		score += p.Answers[i].ScoreAwarded
		if p.Answers[i].IsCorrect {
			correct++
		}
	}
	return score, correct
}

// AnswerSubmission представляет зафиксированный ответ участника на вопрос.
// Пара (participant_id, question_id) уникальна: повторные ответы отклоняются.
type AnswerSubmission struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ParticipantID     string    `gorm:"size:36;not null;uniqueIndex:idx_participant_question" json:"participant_id"`
	QuestionID        uint      `gorm:"not null;uniqueIndex:idx_participant_question" json:"question_id"`
	RoomID            uint      `gorm:"not null;index" json:"room_id"`
	SelectedOptionIDs UintArray `gorm:"type:jsonb;not null" json:"selected_option_ids"`
	TimeSpentMs       int64     `gorm:"not null;default:0" json:"time_spent_ms"`
	IsCorrect         bool      `gorm:"not null;default:false" json:"is_correct"`
	ScoreAwarded      int       `gorm:"not null;default:0" json:"score_awarded"`
	SubmittedAt       time.Time `gorm:"not null" json:"submitted_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (AnswerSubmission) TableName() string {
	return "answer_submissions"
}

package entity

import (
	"time"
)

// Константы статусов комнаты
const (
	RoomStatusWaiting = "waiting"
	RoomStatusActive  = "active"
	RoomStatusPaused  = "paused"
	RoomStatusEnded   = "ended"
)

// Режимы времени комнаты
const (
	TimeModePerQuestion = "per_question"
	TimeModeTotalTime   = "total_time"
)

// Политики показа правильных ответов
const (
	ShowAnswersImmediately = "immediately"
	ShowAnswersAfterQuiz   = "after_quiz"
	ShowAnswersNever       = "never"
)

// Room представляет живую сессию викторины, созданную учителем.
// Участники подключаются по короткому access code.
type Room struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	AccessCode           string     `gorm:"size:12;uniqueIndex;not null" json:"access_code"`
	OwnerID              uint       `gorm:"not null;index" json:"owner_id"`
	QuizID               uint       `gorm:"not null;index" json:"quiz_id"`
	MaxParticipants      int        `gorm:"not null;default:30" json:"max_participants"`
	TimeMode             string     `gorm:"size:20;not null;default:'per_question'" json:"time_mode"`
	TimePerQuestionSec   int        `gorm:"not null;default:30" json:"time_per_question_sec"`
	TotalTimeLimitSec    int        `gorm:"not null;default:0" json:"total_time_limit_sec"`
	ShuffleQuestions     bool       `gorm:"not null;default:false" json:"shuffle_questions"`
	AllowLateJoin        bool       `gorm:"not null;default:true" json:"allow_late_join"`
	ShowAnswersWhen      string     `gorm:"size:20;not null;default:'immediately'" json:"show_answers_when"`
	Status               string     `gorm:"size:20;not null;default:'waiting';index" json:"status"`
	CurrentQuestionIndex int        `gorm:"not null;default:-1" json:"current_question_index"`
	QuestionOrder        UintArray  `gorm:"type:jsonb;not null" json:"-"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	EndedAt              *time.Time `json:"ended_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Room) TableName() string {
	return "rooms"
}

// IsWaiting проверяет, находится ли комната в лобби
func (r *Room) IsWaiting() bool {
	return r.Status == RoomStatusWaiting
}

// IsActive проверяет, идет ли в комнате викторина
func (r *Room) IsActive() bool {
	return r.Status == RoomStatusActive
}

// IsPaused проверяет, приостановлена ли комната
func (r *Room) IsPaused() bool {
	return r.Status == RoomStatusPaused
}

// IsEnded проверяет, завершена ли комната. Статус ended терминальный.
func (r *Room) IsEnded() bool {
	return r.Status == RoomStatusEnded
}

// CanTransitionTo проверяет допустимость перехода статуса.
// Допустимые переходы: waiting->active, active<->paused,
// active->ended, paused->ended, waiting->ended (отмена).
func (r *Room) CanTransitionTo(status string) bool {
	switch r.Status {
	case RoomStatusWaiting:
		return status == RoomStatusActive || status == RoomStatusEnded
	case RoomStatusActive:
		return status == RoomStatusPaused || status == RoomStatusEnded
	case RoomStatusPaused:
		return status == RoomStatusActive || status == RoomStatusEnded
	default:
		return false
	}
}

// EffectiveTimeLimitSec возвращает лимит времени для вопроса с учетом
// переопределения на уровне вопроса. В режиме total_time возвращает 0:
// отдельные вопросы не ограничены.
func (r *Room) EffectiveTimeLimitSec(q *Question) int {
	if r.TimeMode == TimeModeTotalTime {
		return 0
	}
	if q != nil && q.TimeLimitOverrideSec > 0 {
		return q.TimeLimitOverrideSec
	}
	return r.TimePerQuestionSec
}

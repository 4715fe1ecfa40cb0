package roomengine

import (
	"time"

	"github.com/yourusername/classquiz-api/internal/domain/entity"
)

// EventType - тип события комнаты
type EventType string

// События комнаты, рассылаемые клиентам
const (
	EventParticipantJoined  EventType = "PARTICIPANT_JOINED"
	EventParticipantLeft    EventType = "PARTICIPANT_LEFT"
	EventParticipantKicked  EventType = "PARTICIPANT_KICKED"
	EventRoomStarted        EventType = "ROOM_STARTED"
	EventRoomPaused         EventType = "ROOM_PAUSED"
	EventRoomResumed        EventType = "ROOM_RESUMED"
	EventRoomEnded          EventType = "ROOM_ENDED"
	EventQuestionAdvanced   EventType = "QUESTION_ADVANCED"
	EventAnswerAcknowledged EventType = "ANSWER_ACKNOWLEDGED"
	EventScoreUpdated       EventType = "SCORE_UPDATED"
	EventStateSnapshot      EventType = "STATE_SNAPSHOT"
	EventRoomTimer          EventType = "ROOM_TIMER"
)

// Event - одно событие комнаты. События с адресатом "вся комната" получают
// монотонный номер последовательности без пропусков; адресные события
// (подтверждение ответа, снапшот) несут номер последнего рассылочного
// события как отметку "по состоянию на".
type Event struct {
	Type      EventType   `json:"type"`
	RoomID    uint        `json:"room_id"`
	Sequence  uint64      `json:"sequence"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emitted_at"`

	// TeacherOnly ограничивает доставку учительскими подключениями
	TeacherOnly bool `json:"-"`
	// TargetParticipantID адресует событие одному участнику ("" - всем)
	TargetParticipantID string `json:"-"`
}

// ParticipantView - представление участника для клиентов (без ответов)
type ParticipantView struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	Role            string `json:"role"`
	ConnectionState string `json:"connection_state"`
	Score           int    `json:"score"`
	CorrectAnswers  int    `json:"correct_answers"`
}

// QuestionView - представление вопроса для клиентов.
// Правильные варианты никогда не попадают сюда.
type QuestionView struct {
	ID           uint              `json:"id"`
	Index        int               `json:"index"`
	Total        int               `json:"total"`
	Text         string            `json:"text"`
	Options      entity.OptionList `json:"options"`
	TimeLimitSec int               `json:"time_limit_sec"`
	Deadline     *time.Time        `json:"deadline,omitempty"`
}

// QuestionReveal - правильные варианты завершившегося вопроса.
// Отправляется по политике show_answers_when.
type QuestionReveal struct {
	QuestionID       uint             `json:"question_id"`
	CorrectOptionIDs entity.UintArray `json:"correct_option_ids"`
}

// ParticipantJoinedPayload - участник вошел или переподключился
type ParticipantJoinedPayload struct {
	Participant ParticipantView `json:"participant"`
	Reconnected bool            `json:"reconnected"`
	Count       int             `json:"count"`
}

// ParticipantLeftPayload - участник покинул комнату
type ParticipantLeftPayload struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Count         int    `json:"count"`
}

// ParticipantKickedPayload - участник исключен учителем
type ParticipantKickedPayload struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
}

// RoomStartedPayload - комната перешла в активное состояние
type RoomStartedPayload struct {
	QuestionCount int    `json:"question_count"`
	TimeMode      string `json:"time_mode"`
	StartedAt     string `json:"started_at"`
}

// RoomPausedPayload - комната приостановлена
type RoomPausedPayload struct {
	RemainingMs int64 `json:"remaining_ms"`
}

// RoomResumedPayload - комната возобновлена
type RoomResumedPayload struct {
	Deadline *time.Time `json:"deadline,omitempty"`
}

// RoomEndedPayload - комната завершена. Включает итоговую таблицу,
// а при политике after_quiz - и правильные ответы всех вопросов.
type RoomEndedPayload struct {
	Reason      string            `json:"reason"`
	Leaderboard []ParticipantView `json:"leaderboard"`
	Reveals     []QuestionReveal  `json:"reveals,omitempty"`
}

// QuestionAdvancedPayload - показан следующий вопрос
type QuestionAdvancedPayload struct {
	Question QuestionView    `json:"question"`
	Reveal   *QuestionReveal `json:"reveal,omitempty"` // предыдущий вопрос, политика immediately
}

// AnswerAcknowledgedPayload - подтверждение принятого ответа.
// Правильность сообщается только при политике immediately.
type AnswerAcknowledgedPayload struct {
	QuestionID   uint             `json:"question_id"`
	IsCorrect    *bool            `json:"is_correct,omitempty"`
	ScoreAwarded *int             `json:"score_awarded,omitempty"`
	Reveal       *QuestionReveal  `json:"reveal,omitempty"`
	TimeSpentMs  int64            `json:"time_spent_ms"`
	Selected     entity.UintArray `json:"selected_option_ids"`
}

// ScoreUpdatedPayload - обновление счета для панели учителя
type ScoreUpdatedPayload struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	QuestionID    uint   `json:"question_id"`
	IsCorrect     bool   `json:"is_correct"`
	ScoreAwarded  int    `json:"score_awarded"`
	TotalScore    int    `json:"total_score"`
	AnsweredCount int    `json:"answered_count"`
}

// StateSnapshotPayload - полное состояние комнаты для (пере)подключившегося
type StateSnapshotPayload struct {
	RoomID        uint              `json:"room_id"`
	AccessCode    string            `json:"access_code"`
	Status        string            `json:"status"`
	ParticipantID string            `json:"participant_id"`
	Participants  []ParticipantView `json:"participants"`
	Question      *QuestionView     `json:"question,omitempty"`
	RemainingMs   int64             `json:"remaining_ms"`
	Leaderboard   []ParticipantView `json:"leaderboard"`
}

// RoomTimerPayload - секундный тик таймера текущего вопроса
type RoomTimerPayload struct {
	QuestionID  uint  `json:"question_id"`
	RemainingMs int64 `json:"remaining_ms"`
}

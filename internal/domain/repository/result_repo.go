package repository

import (
	"github.com/yourusername/classquiz-api/internal/domain/entity"
)

// ResultRepository определяет методы для сохранения результатов сессий.
// Это граница между движком комнаты и долговременным хранилищем:
// движок работает в памяти и обращается сюда только при загрузке
// вопросов на старте и при финальной записи результатов.
type ResultRepository interface {
	// SaveFinalResults сохраняет итоговые результаты комнаты одной транзакцией:
	// участников вместе с их ответами. Вызывается после перехода комнаты в ended.
	SaveFinalResults(roomID uint, participants []entity.Participant) error
	// SaveSubmission сохраняет один ответ участника. Нарушение уникальности
	// (participant_id, question_id) транслируется в ErrDuplicateSubmission.
	SaveSubmission(submission *entity.AnswerSubmission) error
	GetRoomResults(roomID uint) ([]entity.Participant, error)
	GetParticipantAnswers(participantID string) ([]entity.AnswerSubmission, error)
}

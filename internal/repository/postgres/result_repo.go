package postgres

import (
	"errors"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/yourusername/classquiz-api/internal/domain/entity"
	apperrors "github.com/yourusername/classquiz-api/internal/pkg/errors"
)

// ResultRepo реализует repository.ResultRepository
type ResultRepo struct {
	db *gorm.DB
}

// NewResultRepo создает новый репозиторий результатов
func NewResultRepo(db *gorm.DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности (код 23505).
// Проверяем оба драйвера: pgx (основной) и lib/pq (для совместимости).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// SaveSubmission сохраняет один ответ участника.
// Дубликат по (participant_id, question_id) транслируется в ErrDuplicateSubmission.
// Движок комнаты отклоняет дубликаты еще в памяти, уникальный индекс здесь -
// последняя линия защиты.
func (r *ResultRepo) SaveSubmission(submission *entity.AnswerSubmission) error {
	err := r.db.Create(submission).Error
	if err != nil && isUniqueViolation(err) {
		return apperrors.ErrDuplicateSubmission
	}
	return err
}

// SaveFinalResults сохраняет итоговые результаты комнаты одной транзакцией.
// Участники и их ответы пишутся вместе: либо сохраняется все, либо ничего,
// чтобы повторная попытка после сбоя не оставляла частичных результатов.
func (r *ResultRepo) SaveFinalResults(roomID uint, participants []entity.Participant) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for i := range participants {
			p := participants[i]
			answers := p.Answers
			p.Answers = nil

			if err := tx.Save(&p).Error; err != nil {
				log.Printf("[ResultRepo] Ошибка сохранения участника %s комнаты %d: %v", p.ID, roomID, err)
				return err
			}

			for j := range answers {
				if err := tx.Create(&answers[j]).Error; err != nil {
					if isUniqueViolation(err) {
						// Ответ уже записан предыдущей (прерванной) попыткой, пропускаем
						continue
					}
					log.Printf("[ResultRepo] Ошибка сохранения ответа участника %s на вопрос %d: %v",
						p.ID, answers[j].QuestionID, err)
					return err
				}
			}
		}
		return nil
	})
}

// GetRoomResults возвращает итоговые результаты комнаты,
// отсортированные по убыванию счета
func (r *ResultRepo) GetRoomResults(roomID uint) ([]entity.Participant, error) {
	var participants []entity.Participant
	err := r.db.Where("room_id = ?", roomID).
		Preload("Answers").
		Order("score DESC, correct_answers DESC, joined_at ASC").
		Find(&participants).Error
	// Пустой слайс - валидный результат, ErrRecordNotFound здесь не проверяем
	return participants, err
}

// GetParticipantAnswers возвращает все сохраненные ответы участника
func (r *ResultRepo) GetParticipantAnswers(participantID string) ([]entity.AnswerSubmission, error) {
	var answers []entity.AnswerSubmission
	err := r.db.Where("participant_id = ?", participantID).
		Order("submitted_at").
		Find(&answers).Error
	return answers, err
}

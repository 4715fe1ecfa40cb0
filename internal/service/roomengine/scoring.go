package roomengine

import (
	"log"

	"github.com/yourusername/classquiz-api/internal/domain/entity"
)

// scoreResult - результат оценки одного ответа
type scoreResult struct {
	IsCorrect    bool
	ScoreAwarded int
}

// scoreSubmission оценивает ответ участника. Чистая функция без побочных
// эффектов, вся работа с состоянием комнаты остается в акторе.
//
// Правила:
//   - ответ засчитывается только при точном совпадении множеств выбранных
//     и правильных вариантов;
//   - правильный ответ приносит point_value очков;
//   - в режиме per_question добавляется бонус за скорость: до половины
//     point_value пропорционально оставшемуся времени;
//   - вопрос без правильных вариантов не засчитывает ничего.
func scoreSubmission(q *entity.Question, timeMode string, selected []uint, timeSpentMs, limitMs int64) scoreResult {
	if !q.HasCorrectOptions() {
		log.Printf("[Scoring] Вопрос %d не имеет правильных вариантов, ответ не засчитан", q.ID)
		return scoreResult{}
	}

	if !q.IsCorrectSet(selected) {
		return scoreResult{IsCorrect: false, ScoreAwarded: 0}
	}

	score := q.PointValue

	// Бонус за скорость только при лимите на вопрос
	if timeMode == entity.TimeModePerQuestion && limitMs > 0 {
		remaining := limitMs - timeSpentMs
		if remaining < 0 {
			remaining = 0
		}
		if remaining > limitMs {
			remaining = limitMs
		}
		bonus := int(int64(q.PointValue) * remaining / (2 * limitMs))
		score += bonus
	}

	return scoreResult{IsCorrect: true, ScoreAwarded: score}
}

// clampTimeSpent ограничивает заявленное клиентом время ответа
// серверными рамками: не меньше нуля и не больше фактически
// прошедшего времени с показа вопроса.
func clampTimeSpent(claimedMs, serverElapsedMs int64) int64 {
	if claimedMs < 0 {
		return 0
	}
	if serverElapsedMs >= 0 && claimedMs > serverElapsedMs {
		return serverElapsedMs
	}
	return claimedMs
}

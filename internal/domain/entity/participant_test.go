package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParticipant_HasAnswered(t *testing.T) {
	// Arrange
	participant := &Participant{
		ID: "p-1",
		Answers: []AnswerSubmission{
			{QuestionID: 1, IsCorrect: true, ScoreAwarded: 100},
			{QuestionID: 3, IsCorrect: false, ScoreAwarded: 0},
		},
	}

	// Act & Assert
	assert.True(t, participant.HasAnswered(1))
	assert.True(t, participant.HasAnswered(3))
	assert.False(t, participant.HasAnswered(2), "На вопрос 2 участник не отвечал")
}

func TestParticipant_ReplayScore(t *testing.T) {
	// Arrange
	participant := &Participant{
		Score:          147,
		CorrectAnswers: 2,
		Answers: []AnswerSubmission{
			{QuestionID: 1, IsCorrect: true, ScoreAwarded: 100},
			{QuestionID: 2, IsCorrect: false, ScoreAwarded: 0},
			{QuestionID: 3, IsCorrect: true, ScoreAwarded: 47},
		},
	}

	// Act
	score, correct := participant.ReplayScore()

	// Assert: пересчет по ответам совпадает с накопленным счетом
	assert.Equal(t, 147, score)
	assert.Equal(t, 2, correct)
	assert.Equal(t, participant.Score, score)
	assert.Equal(t, participant.CorrectAnswers, correct)
}

func TestParticipant_ReplayScore_Empty(t *testing.T) {
	participant := &Participant{}

	score, correct := participant.ReplayScore()

	assert.Equal(t, 0, score)
	assert.Equal(t, 0, correct)
}

func TestParticipant_RoleHelpers(t *testing.T) {
	assert.True(t, (&Participant{Role: RoleTeacher}).IsTeacher())
	assert.False(t, (&Participant{Role: RoleStudent}).IsTeacher())
	assert.True(t, (&Participant{ConnectionState: ConnectionStateConnected}).IsConnected())
	assert.False(t, (&Participant{ConnectionState: ConnectionStateDisconnected}).IsConnected())
}

func TestParticipant_TableNames(t *testing.T) {
	assert.Equal(t, "participants", Participant{}.TableName())
	assert.Equal(t, "answer_submissions", AnswerSubmission{}.TableName())
}

package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoom_CanTransitionTo(t *testing.T) {
	testCases := []struct {
		name    string
		from    string
		to      string
		allowed bool
	}{
		{"waiting -> active", RoomStatusWaiting, RoomStatusActive, true},
		{"waiting -> ended (отмена)", RoomStatusWaiting, RoomStatusEnded, true},
		{"waiting -> paused", RoomStatusWaiting, RoomStatusPaused, false},
		{"active -> paused", RoomStatusActive, RoomStatusPaused, true},
		{"active -> ended", RoomStatusActive, RoomStatusEnded, true},
		{"active -> waiting", RoomStatusActive, RoomStatusWaiting, false},
		{"paused -> active", RoomStatusPaused, RoomStatusActive, true},
		{"paused -> ended", RoomStatusPaused, RoomStatusEnded, true},
		{"paused -> waiting", RoomStatusPaused, RoomStatusWaiting, false},
		{"ended терминальный", RoomStatusEnded, RoomStatusActive, false},
		{"ended -> waiting", RoomStatusEnded, RoomStatusWaiting, false},
		{"ended -> ended", RoomStatusEnded, RoomStatusEnded, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			room := &Room{Status: tc.from}
			assert.Equal(t, tc.allowed, room.CanTransitionTo(tc.to))
		})
	}
}

func TestRoom_StatusHelpers(t *testing.T) {
	assert.True(t, (&Room{Status: RoomStatusWaiting}).IsWaiting())
	assert.True(t, (&Room{Status: RoomStatusActive}).IsActive())
	assert.True(t, (&Room{Status: RoomStatusPaused}).IsPaused())
	assert.True(t, (&Room{Status: RoomStatusEnded}).IsEnded())
	assert.False(t, (&Room{Status: RoomStatusWaiting}).IsActive())
}

func TestRoom_EffectiveTimeLimitSec(t *testing.T) {
	// Arrange
	room := &Room{
		TimeMode:           TimeModePerQuestion,
		TimePerQuestionSec: 30,
	}

	// Act & Assert: по умолчанию берется лимит комнаты
	assert.Equal(t, 30, room.EffectiveTimeLimitSec(&Question{}))

	// Переопределение на уровне вопроса имеет приоритет
	assert.Equal(t, 45, room.EffectiveTimeLimitSec(&Question{TimeLimitOverrideSec: 45}))

	// В режиме total_time отдельные вопросы не ограничены
	totalRoom := &Room{
		TimeMode:          TimeModeTotalTime,
		TotalTimeLimitSec: 600,
	}
	assert.Equal(t, 0, totalRoom.EffectiveTimeLimitSec(&Question{TimeLimitOverrideSec: 45}))
}

func TestRoom_TableName(t *testing.T) {
	assert.Equal(t, "rooms", Room{}.TableName())
}

package roomengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/classquiz-api/internal/domain/entity"
)

func TestActor_Timer_AdvancesOnDeadline(t *testing.T) {
	room := testRoom()
	room.TimePerQuestionSec = 1
	f := newActorFixture(t, room, testQuestions())

	teacherID := f.joinTeacher(t)
	require.NoError(t, f.actor.Start(context.Background(), teacherID))

	// Таймер сам переводит комнату на второй вопрос
	require.Eventually(t, func() bool {
		return len(f.broadcast.byType(EventQuestionAdvanced)) == 2
	}, 3*time.Second, 20*time.Millisecond, "По дедлайну должен показаться следующий вопрос")

	// И завершает комнату после последнего
	require.Eventually(t, func() bool {
		return len(f.broadcast.byType(EventRoomEnded)) == 1
	}, 3*time.Second, 20*time.Millisecond)
	ended := f.broadcast.byType(EventRoomEnded)
	assert.Equal(t, "questions_exhausted", ended[0].Payload.(RoomEndedPayload).Reason)
}

func TestActor_Timer_PauseInvalidatesDeadline(t *testing.T) {
	room := testRoom()
	room.TimePerQuestionSec = 1
	f := newActorFixture(t, room, testQuestions())

	teacherID := f.joinTeacher(t)
	require.NoError(t, f.actor.Start(context.Background(), teacherID))
	require.NoError(t, f.actor.Pause(context.Background(), teacherID))

	// Дедлайн первого вопроса прошел бы, но пауза сняла таймер
	time.Sleep(1500 * time.Millisecond)
	assert.Len(t, f.broadcast.byType(EventQuestionAdvanced), 1, "Во время паузы переходов нет")
	assert.Len(t, f.broadcast.byType(EventRoomEnded), 0)
}

func TestActor_Timer_TicksWhileActive(t *testing.T) {
	room := testRoom()
	room.TimePerQuestionSec = 3
	f := newActorFixture(t, room, testQuestions())

	teacherID := f.joinTeacher(t)
	require.NoError(t, f.actor.Start(context.Background(), teacherID))

	require.Eventually(t, func() bool {
		return len(f.broadcast.byType(EventRoomTimer)) >= 1
	}, 3*time.Second, 20*time.Millisecond, "Раз в секунду должен приходить тик")

	ticks := f.broadcast.byType(EventRoomTimer)
	payload := ticks[0].Payload.(RoomTimerPayload)
	assert.Equal(t, uint(10), payload.QuestionID)
	assert.Greater(t, payload.RemainingMs, int64(0))
	assert.LessOrEqual(t, payload.RemainingMs, int64(3000))
}

func TestActor_TotalTimeMode_EndsOnRoomDeadline(t *testing.T) {
	room := testRoom()
	room.TimeMode = entity.TimeModeTotalTime
	room.TotalTimeLimitSec = 1
	f := newActorFixture(t, room, testQuestions())

	teacherID := f.joinTeacher(t)
	require.NoError(t, f.actor.Start(context.Background(), teacherID))

	// В режиме total_time отдельные вопросы без дедлайна
	advanced := f.broadcast.byType(EventQuestionAdvanced)
	require.Len(t, advanced, 1)
	assert.Nil(t, advanced[0].Payload.(QuestionAdvancedPayload).Question.Deadline)

	require.Eventually(t, func() bool {
		return len(f.broadcast.byType(EventRoomEnded)) == 1
	}, 3*time.Second, 20*time.Millisecond, "Общий лимит завершает комнату")
	ended := f.broadcast.byType(EventRoomEnded)
	assert.Equal(t, "time_expired", ended[0].Payload.(RoomEndedPayload).Reason)
}

func TestActor_TotalTimeMode_DeadlineSurvivesAdvance(t *testing.T) {
	room := testRoom()
	room.TimeMode = entity.TimeModeTotalTime
	room.TotalTimeLimitSec = 1
	f := newActorFixture(t, room, testQuestions())

	teacherID := f.joinTeacher(t)
	require.NoError(t, f.actor.Start(context.Background(), teacherID))

	// Ручной переход на второй вопрос не сбрасывает общий лимит
	require.NoError(t, f.actor.Advance(context.Background(), teacherID))
	require.Len(t, f.broadcast.byType(EventQuestionAdvanced), 2)

	require.Eventually(t, func() bool {
		return len(f.broadcast.byType(EventRoomEnded)) == 1
	}, 3*time.Second, 20*time.Millisecond, "Общий лимит переживает смену вопросов")
	ended := f.broadcast.byType(EventRoomEnded)
	assert.Equal(t, "time_expired", ended[0].Payload.(RoomEndedPayload).Reason)
}

func TestActor_TotalTimeMode_PauseFreezesRoomDeadline(t *testing.T) {
	room := testRoom()
	room.TimeMode = entity.TimeModeTotalTime
	room.TotalTimeLimitSec = 1
	f := newActorFixture(t, room, testQuestions())

	teacherID := f.joinTeacher(t)
	require.NoError(t, f.actor.Start(context.Background(), teacherID))
	require.NoError(t, f.actor.Pause(context.Background(), teacherID))

	// Лимит прошел бы, но пауза остановила общий таймер
	time.Sleep(1500 * time.Millisecond)
	assert.Empty(t, f.broadcast.byType(EventRoomEnded))

	require.NoError(t, f.actor.Resume(context.Background(), teacherID))
	require.Eventually(t, func() bool {
		return len(f.broadcast.byType(EventRoomEnded)) == 1
	}, 3*time.Second, 20*time.Millisecond, "После возобновления остаток лимита дорабатывает")
	ended := f.broadcast.byType(EventRoomEnded)
	assert.Equal(t, "time_expired", ended[0].Payload.(RoomEndedPayload).Reason)
}

func TestActor_MustPost_WaitsForQueueSpace(t *testing.T) {
	a := &Actor{commands: make(chan command, 1), done: make(chan struct{})}
	a.commands <- timerTickCmd{generation: 1} // очередь забита

	// Тик при полной очереди просто теряется
	assert.False(t, a.tryPost(timerTickCmd{generation: 2}))

	delivered := make(chan struct{})
	go func() {
		a.mustPost(advanceCmd{generation: 1})
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("mustPost не должен завершаться, пока очередь забита")
	case <-time.After(50 * time.Millisecond):
	}

	<-a.commands // освобождаем место
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("Дедлайн обязан дойти, как только в очереди появилось место")
	}
	assert.IsType(t, advanceCmd{}, <-a.commands)

	// Остановка актора отпускает ожидающую доставку
	a.commands <- timerTickCmd{generation: 3}
	released := make(chan struct{})
	go func() {
		a.mustPost(advanceCmd{generation: 2})
		close(released)
	}()
	close(a.done)
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("Закрытие актора должно отпускать mustPost")
	}
}

func TestQuestionTimer_StopReturnsRemaining(t *testing.T) {
	f := newActorFixture(t, testRoom(), testQuestions())

	tmr := f.actor.armTimer(time.Minute, timerTickCmd{generation: 1}, advanceCmd{generation: 1})
	remaining := tmr.Stop()

	assert.Greater(t, remaining, 50*time.Second)
	assert.LessOrEqual(t, remaining, time.Minute)

	// Повторный Stop безопасен
	assert.GreaterOrEqual(t, tmr.Stop(), time.Duration(0))
}

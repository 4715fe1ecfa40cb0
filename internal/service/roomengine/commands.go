package roomengine

import (
	"context"
	"time"
)

// command - внутренняя команда актора комнаты. Все изменения состояния
// комнаты проходят через канал команд и выполняются одной горутиной,
// поэтому обработчики не нуждаются в блокировках.
type command interface {
	isCommand()
}

// reply - ответ на команду с результатом
type reply[T any] struct {
	value T
	err   error
}

// JoinRequest - запрос на вход в комнату. ResumeParticipantID - прежняя
// идентичность клиента: после перезапуска процесса она сверяется с
// grace-маркером в Redis и при совпадении возвращается участнику.
type JoinRequest struct {
	UserID              uint
	DisplayName         string
	ResumeParticipantID string
}

// JoinResult - результат входа: идентичность участника и снапшот состояния
type JoinResult struct {
	ParticipantID string
	Role          string
	Reconnected   bool
	Snapshot      Event
}

type joinCmd struct {
	req   JoinRequest
	reply chan reply[JoinResult]
}

type leaveCmd struct {
	participantID string
	reply         chan reply[struct{}]
}

// disconnectCmd - обрыв соединения без явного выхода: открывает grace-окно
type disconnectCmd struct {
	participantID string
}

// graceExpiredCmd - grace-окно истекло, участник так и не вернулся
type graceExpiredCmd struct {
	participantID string
	generation    uint64
}

type kickCmd struct {
	actorID  string // кто исключает
	targetID string // кого исключают
	reply    chan reply[struct{}]
}

type startCmd struct {
	actorID string
	reply   chan reply[struct{}]
}

type pauseCmd struct {
	actorID string
	reply   chan reply[struct{}]
}

type resumeCmd struct {
	actorID string
	reply   chan reply[struct{}]
}

type endCmd struct {
	actorID string
	reason  string
	reply   chan reply[struct{}]
}

// SubmitRequest - ответ участника на текущий вопрос
type SubmitRequest struct {
	ParticipantID     string
	QuestionID        uint
	SelectedOptionIDs []uint
	TimeSpentMs       int64
}

type submitCmd struct {
	req   SubmitRequest
	reply chan reply[struct{}]
}

// advanceCmd - переход к следующему вопросу. Отправляется таймером
// по дедлайну либо учителем вручную. Номер поколения защищает от
// устаревших срабатываний таймера после паузы или ручного перехода.
type advanceCmd struct {
	generation uint64
	manual     bool
	actorID    string
	reply      chan reply[struct{}] // nil для таймера
}

// timerTickCmd - секундный тик для рассылки ROOM_TIMER.
// Тики общего лимита (room=true) сверяются с поколением общего таймера,
// тики вопроса - с поколением вопроса.
type timerTickCmd struct {
	generation uint64
	room       bool
}

// totalTimeExpiredCmd - истек общий лимит времени (режим total_time)
type totalTimeExpiredCmd struct {
	generation uint64
}

type snapshotCmd struct {
	participantID string
	reply         chan reply[Event]
}

// idleCheckCmd - периодическая проверка простоя лобби
type idleCheckCmd struct{}

func (joinCmd) isCommand()             {}
func (leaveCmd) isCommand()            {}
func (disconnectCmd) isCommand()       {}
func (graceExpiredCmd) isCommand()     {}
func (kickCmd) isCommand()             {}
func (startCmd) isCommand()            {}
func (pauseCmd) isCommand()            {}
func (resumeCmd) isCommand()           {}
func (endCmd) isCommand()              {}
func (submitCmd) isCommand()           {}
func (advanceCmd) isCommand()          {}
func (timerTickCmd) isCommand()        {}
func (totalTimeExpiredCmd) isCommand() {}
func (snapshotCmd) isCommand()         {}
func (idleCheckCmd) isCommand()        {}

// post ставит команду в очередь актора. Блокируется при заполненной
// очереди до освобождения места, отмены контекста или остановки актора.
func (a *Actor) post(ctx context.Context, cmd command) error {
	select {
	case a.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return errRoomStopped
	}
}

// mustPost ставит команду, дожидаясь места в очереди. Для команд,
// терять которые нельзя: истекший дедлайн или grace-окно без повторной
// доставки заморозили бы комнату навсегда.
func (a *Actor) mustPost(cmd command) {
	select {
	case a.commands <- cmd:
	case <-a.done:
	}
}

// tryPost ставит команду без блокировки. Используется секундными тиками:
// потерянный тик не страшен, следующий придет через секунду.
func (a *Actor) tryPost(cmd command) bool {
	select {
	case a.commands <- cmd:
		return true
	case <-a.done:
		return false
	default:
		return false
	}
}

// postWait ставит команду и ждет ответа
func postWait[T any](ctx context.Context, a *Actor, cmd command, ch chan reply[T]) (T, error) {
	var zero T
	if err := a.post(ctx, cmd); err != nil {
		return zero, err
	}
	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-a.done:
		return zero, errRoomStopped
	}
}

// deadlineIn возвращает указатель на момент "сейчас + d"
func deadlineIn(d time.Duration) *time.Time {
	t := time.Now().Add(d)
	return &t
}

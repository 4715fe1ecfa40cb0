package roomengine

import (
	"context"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/classquiz-api/internal/domain/entity"
	apperrors "github.com/yourusername/classquiz-api/internal/pkg/errors"
)

// errRoomStopped возвращается командам, пришедшим после остановки актора.
// Для клиента это неотличимо от закрытой комнаты.
var errRoomStopped = apperrors.ErrRoomClosed

// participantState - участник вместе с служебными полями актора
type participantState struct {
	*entity.Participant
	departed bool   // вышел сам, исключен или не вернулся за grace-окно
	graceGen uint64 // отсекает устаревшие срабатывания grace-таймера
}

// Actor владеет состоянием одной комнаты. Все команды проходят через
// один канал и обрабатываются одной горутиной, поэтому внутри обработчиков
// нет ни блокировок, ни гонок: очередь команд и есть сериализация.
type Actor struct {
	room         *entity.Room
	questions    []entity.Question
	participants map[string]*participantState
	byUserID     map[uint]string // активная идентичность пользователя в комнате
	kickedUsers  map[uint]bool   // исключенные навсегда, до конца сессии

	seq        uint64 // монотонный номер рассылочных событий, без пропусков
	generation uint64 // поколение таймера вопроса: пауза и переход инвалидируют старые
	roomGen    uint64 // поколение общего таймера: переживает смену вопросов

	commands chan command
	done     chan struct{}
	stopOnce sync.Once

	deps *Dependencies
	cfg  *Config

	questionTmr *questionTimer // дедлайн текущего вопроса (режим per_question)
	roomTmr     *questionTimer // общий лимит серии (режим total_time)

	questionShownAt    time.Time
	elapsedBeforePause time.Duration // накопленное время вопроса до паузы
	pausedQuestionLeft time.Duration
	pausedRoomLeft     time.Duration

	createdAt    time.Time
	lastActivity time.Time

	// Снимок для реестра: читается из чужих горутин
	extMu      sync.Mutex
	extStatus  string
	extEndedAt time.Time
}

// NewActor создает актор комнаты. Вопросы могут быть nil, если
// предзагрузка не удалась: тогда загрузка повторится при старте.
func NewActor(room *entity.Room, questions []entity.Question, deps *Dependencies) *Actor {
	cfg := deps.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	a := &Actor{
		room:         room,
		questions:    questions,
		participants: make(map[string]*participantState),
		byUserID:     make(map[uint]string),
		kickedUsers:  make(map[uint]bool),
		commands:     make(chan command, cfg.ActorQueueSize),
		done:         make(chan struct{}),
		deps:         deps,
		cfg:          cfg,
		createdAt:    time.Now(),
		lastActivity: time.Now(),
		extStatus:    room.Status,
	}
	go a.run()
	return a
}

// RoomID возвращает идентификатор комнаты
func (a *Actor) RoomID() uint {
	return a.room.ID
}

// AccessCode возвращает код доступа комнаты
func (a *Actor) AccessCode() string {
	return a.room.AccessCode
}

// Stop останавливает актор. Команды в очереди не дообрабатываются:
// остановка выполняется реестром только после завершения комнаты.
func (a *Actor) Stop() {
	a.stopOnce.Do(func() { close(a.done) })
}

// ExtState возвращает снимок состояния для сборщика мусора реестра
func (a *Actor) ExtState() (status string, endedAt time.Time, createdAt time.Time) {
	a.extMu.Lock()
	defer a.extMu.Unlock()
	return a.extStatus, a.extEndedAt, a.createdAt
}

// --- Публичный API: каждая операция становится командой в очереди ---

// Join вводит пользователя в комнату или переподключает его
func (a *Actor) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	ch := make(chan reply[JoinResult], 1)
	return postWait(ctx, a, joinCmd{req: req, reply: ch}, ch)
}

// Leave - явный выход участника
func (a *Actor) Leave(ctx context.Context, participantID string) error {
	ch := make(chan reply[struct{}], 1)
	_, err := postWait(ctx, a, leaveCmd{participantID: participantID, reply: ch}, ch)
	return err
}

// NotifyDisconnect сообщает об обрыве соединения участника.
// Не блокирует: вызывается хабом из горутины подключения.
func (a *Actor) NotifyDisconnect(participantID string) {
	a.tryPost(disconnectCmd{participantID: participantID})
}

// Kick исключает участника из комнаты до конца сессии
func (a *Actor) Kick(ctx context.Context, actorID, targetID string) error {
	ch := make(chan reply[struct{}], 1)
	_, err := postWait(ctx, a, kickCmd{actorID: actorID, targetID: targetID, reply: ch}, ch)
	return err
}

// Start запускает викторину
func (a *Actor) Start(ctx context.Context, actorID string) error {
	ch := make(chan reply[struct{}], 1)
	_, err := postWait(ctx, a, startCmd{actorID: actorID, reply: ch}, ch)
	return err
}

// Pause приостанавливает викторину
func (a *Actor) Pause(ctx context.Context, actorID string) error {
	ch := make(chan reply[struct{}], 1)
	_, err := postWait(ctx, a, pauseCmd{actorID: actorID, reply: ch}, ch)
	return err
}

// Resume возобновляет викторину
func (a *Actor) Resume(ctx context.Context, actorID string) error {
	ch := make(chan reply[struct{}], 1)
	_, err := postWait(ctx, a, resumeCmd{actorID: actorID, reply: ch}, ch)
	return err
}

// End досрочно завершает викторину
func (a *Actor) End(ctx context.Context, actorID string) error {
	ch := make(chan reply[struct{}], 1)
	_, err := postWait(ctx, a, endCmd{actorID: actorID, reason: "ended_by_teacher", reply: ch}, ch)
	return err
}

// Advance - ручной переход учителя к следующему вопросу
func (a *Actor) Advance(ctx context.Context, actorID string) error {
	ch := make(chan reply[struct{}], 1)
	_, err := postWait(ctx, a, advanceCmd{manual: true, actorID: actorID, reply: ch}, ch)
	return err
}

// SubmitAnswer фиксирует ответ участника на текущий вопрос
func (a *Actor) SubmitAnswer(ctx context.Context, req SubmitRequest) error {
	ch := make(chan reply[struct{}], 1)
	_, err := postWait(ctx, a, submitCmd{req: req, reply: ch}, ch)
	return err
}

// Snapshot возвращает полное состояние комнаты для участника
func (a *Actor) Snapshot(ctx context.Context, participantID string) (Event, error) {
	ch := make(chan reply[Event], 1)
	return postWait(ctx, a, snapshotCmd{participantID: participantID, reply: ch}, ch)
}

// --- Цикл актора ---

func (a *Actor) run() {
	for {
		select {
		case cmd := <-a.commands:
			a.dispatch(cmd)
			a.syncExtState()
		case <-a.done:
			return
		}
	}
}

func (a *Actor) dispatch(cmd command) {
	a.lastActivity = time.Now()

	switch c := cmd.(type) {
	case joinCmd:
		res, err := a.handleJoin(c.req)
		c.reply <- reply[JoinResult]{value: res, err: err}
	case leaveCmd:
		c.reply <- reply[struct{}]{err: a.handleLeave(c.participantID)}
	case disconnectCmd:
		a.handleDisconnect(c.participantID)
	case graceExpiredCmd:
		a.handleGraceExpired(c.participantID, c.generation)
	case kickCmd:
		c.reply <- reply[struct{}]{err: a.handleKick(c.actorID, c.targetID)}
	case startCmd:
		c.reply <- reply[struct{}]{err: a.handleStart(c.actorID)}
	case pauseCmd:
		c.reply <- reply[struct{}]{err: a.handlePause(c.actorID)}
	case resumeCmd:
		c.reply <- reply[struct{}]{err: a.handleResume(c.actorID)}
	case endCmd:
		c.reply <- reply[struct{}]{err: a.handleEnd(c.actorID, c.reason)}
	case submitCmd:
		c.reply <- reply[struct{}]{err: a.handleSubmit(c.req)}
	case advanceCmd:
		err := a.handleAdvance(c)
		if c.reply != nil {
			c.reply <- reply[struct{}]{err: err}
		}
	case timerTickCmd:
		a.handleTimerTick(c)
	case totalTimeExpiredCmd:
		a.handleTotalTimeExpired(c.generation)
	case snapshotCmd:
		ev, err := a.buildSnapshotEvent(c.participantID)
		c.reply <- reply[Event]{value: ev, err: err}
	case idleCheckCmd:
		a.handleIdleCheck()
	}
}

func (a *Actor) syncExtState() {
	a.extMu.Lock()
	a.extStatus = a.room.Status
	if a.room.EndedAt != nil {
		a.extEndedAt = *a.room.EndedAt
	}
	a.extMu.Unlock()
}

// emit присваивает номера и отдает события хабу. Номер последовательности
// увеличивается только у событий, адресованных всей комнате: так каждое
// подключение видит рассылочные номера без пропусков, а адресные события
// несут номер "по состоянию на".
func (a *Actor) emit(events ...Event) {
	now := time.Now()
	for i := range events {
		events[i].RoomID = a.room.ID
		events[i].EmittedAt = now
		if !events[i].TeacherOnly && events[i].TargetParticipantID == "" {
			a.seq++
		}
		events[i].Sequence = a.seq
	}
	if a.deps.Broadcaster != nil {
		a.deps.Broadcaster.BroadcastToRoom(a.room.ID, events)
	}
}

// --- Обработчики команд ---

func (a *Actor) handleJoin(req JoinRequest) (JoinResult, error) {
	if a.room.IsEnded() {
		return JoinResult{}, apperrors.ErrRoomClosed
	}
	if a.kickedUsers[req.UserID] {
		return JoinResult{}, apperrors.ErrForbidden
	}

	// Переподключение: идентичность участника переживает соединение.
	// Остальные не узнают об обрыве, поэтому и возвращение не анонсируется -
	// вернувшийся получает свежий снапшот, и этого достаточно.
	if pid, ok := a.byUserID[req.UserID]; ok {
		p := a.participants[pid]
		p.ConnectionState = entity.ConnectionStateConnected
		p.graceGen++ // отменяем незакрытое grace-окно
		if a.deps.Presence != nil {
			if err := a.deps.Presence.ClearDisconnected(a.room.ID, pid); err != nil {
				log.Printf("[RoomActor %d] Ошибка очистки grace-маркера %s: %v", a.room.ID, pid, err)
			}
		}
		log.Printf("[RoomActor %d] Участник %s (%s) переподключился", a.room.ID, p.DisplayName, pid)
		snap, _ := a.buildSnapshotEvent(pid)
		return JoinResult{ParticipantID: pid, Role: p.Role, Reconnected: true, Snapshot: snap}, nil
	}

	role := entity.RoleStudent
	if req.UserID == a.room.OwnerID {
		role = entity.RoleTeacher
	}

	if role == entity.RoleStudent {
		if !a.room.IsWaiting() && !a.room.AllowLateJoin {
			return JoinResult{}, apperrors.ErrLateJoinDisallowed
		}
		if a.activeStudents() >= a.room.MaxParticipants {
			return JoinResult{}, apperrors.ErrRoomFull
		}
	}

	// Перезапуск процесса: память актора пуста, но grace-маркер в Redis
	// пережил рестарт - прежняя идентичность возвращается участнику
	pid := uuid.NewString()
	reattached := false
	if req.ResumeParticipantID != "" && a.deps.Presence != nil {
		if _, taken := a.participants[req.ResumeParticipantID]; !taken {
			within, err := a.deps.Presence.IsWithinGrace(a.room.ID, req.ResumeParticipantID)
			if err != nil {
				log.Printf("[RoomActor %d] Ошибка проверки grace-маркера %s: %v", a.room.ID, req.ResumeParticipantID, err)
			}
			if within {
				pid = req.ResumeParticipantID
				reattached = true
			}
		}
	}

	p := &participantState{
		Participant: &entity.Participant{
			ID:              pid,
			RoomID:          a.room.ID,
			UserID:          req.UserID,
			DisplayName:     req.DisplayName,
			Role:            role,
			ConnectionState: entity.ConnectionStateConnected,
			JoinedAt:        time.Now(),
		},
	}
	a.participants[p.ID] = p
	a.byUserID[req.UserID] = p.ID
	if a.deps.Presence != nil {
		if reattached {
			if err := a.deps.Presence.ClearDisconnected(a.room.ID, p.ID); err != nil {
				log.Printf("[RoomActor %d] Ошибка очистки grace-маркера %s: %v", a.room.ID, p.ID, err)
			}
		}
		if _, err := a.deps.Presence.IncrOccupancy(a.room.ID); err != nil {
			log.Printf("[RoomActor %d] Ошибка счетчика занятости: %v", a.room.ID, err)
		}
	}

	a.emit(Event{
		Type: EventParticipantJoined,
		Payload: ParticipantJoinedPayload{
			Participant: a.viewOf(p),
			Reconnected: reattached,
			Count:       a.activeCount(),
		},
	})
	log.Printf("[RoomActor %d] Участник %s (%s, роль %s) вошел в комнату", a.room.ID, p.DisplayName, p.ID, role)

	snap, _ := a.buildSnapshotEvent(p.ID)
	return JoinResult{ParticipantID: p.ID, Role: role, Reconnected: reattached, Snapshot: snap}, nil
}

// handleLeave - явный выход. Ведет себя как обрыв связи: участнику
// открывается такое же grace-окно, и передумавший может вернуться
// с той же идентичностью и счетом.
func (a *Actor) handleLeave(participantID string) error {
	p, ok := a.participants[participantID]
	if !ok || p.departed {
		return apperrors.ErrNotFound
	}
	if !p.IsConnected() {
		// Grace-окно уже открыто обрывом соединения
		return nil
	}
	a.openGraceWindow(p)
	log.Printf("[RoomActor %d] Участник %s (%s) вышел, grace-окно %s", a.room.ID, p.DisplayName, p.ID, a.cfg.ReconnectGrace)
	return nil
}

func (a *Actor) handleDisconnect(participantID string) {
	p, ok := a.participants[participantID]
	if !ok || p.departed || !p.IsConnected() {
		return
	}
	a.openGraceWindow(p)
	log.Printf("[RoomActor %d] Связь с участником %s потеряна, grace-окно %s", a.room.ID, p.ID, a.cfg.ReconnectGrace)
}

// openGraceWindow помечает участника отключенным и взводит grace-таймер.
// Если участник не вернется до его срабатывания, уход будет оформлен.
func (a *Actor) openGraceWindow(p *participantState) {
	p.ConnectionState = entity.ConnectionStateDisconnected
	p.graceGen++
	gen := p.graceGen

	if a.deps.Presence != nil {
		if err := a.deps.Presence.MarkDisconnected(a.room.ID, p.ID, a.cfg.ReconnectGrace); err != nil {
			log.Printf("[RoomActor %d] Ошибка записи grace-маркера %s: %v", a.room.ID, p.ID, err)
		}
	}

	time.AfterFunc(a.cfg.ReconnectGrace, func() {
		a.mustPost(graceExpiredCmd{participantID: p.ID, generation: gen})
	})
}

func (a *Actor) handleGraceExpired(participantID string, gen uint64) {
	p, ok := a.participants[participantID]
	if !ok || p.departed || p.graceGen != gen || p.IsConnected() {
		return
	}
	a.departParticipant(p)
	a.emit(Event{
		Type: EventParticipantLeft,
		Payload: ParticipantLeftPayload{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Count:         a.activeCount(),
		},
	})
	log.Printf("[RoomActor %d] Участник %s не вернулся за grace-окно, считаем вышедшим", a.room.ID, p.ID)
}

func (a *Actor) handleKick(actorID, targetID string) error {
	if err := a.requireTeacher(actorID); err != nil {
		return err
	}
	if actorID == targetID {
		return apperrors.ErrValidation
	}
	p, ok := a.participants[targetID]
	if !ok || p.departed {
		return apperrors.ErrNotFound
	}
	if p.IsTeacher() {
		return apperrors.ErrForbidden
	}

	p.Kicked = true
	a.kickedUsers[p.UserID] = true
	a.departParticipant(p)

	a.emit(Event{
		Type: EventParticipantKicked,
		Payload: ParticipantKickedPayload{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
		},
	})
	if a.deps.Broadcaster != nil {
		a.deps.Broadcaster.DisconnectParticipant(a.room.ID, p.ID, "kicked")
	}
	log.Printf("[RoomActor %d] Участник %s (%s) исключен учителем", a.room.ID, p.DisplayName, p.ID)
	return nil
}

func (a *Actor) handleStart(actorID string) error {
	if err := a.requireTeacher(actorID); err != nil {
		return err
	}
	if a.room.IsEnded() {
		return apperrors.ErrRoomClosed
	}
	if !a.room.CanTransitionTo(entity.RoomStatusActive) || !a.room.IsWaiting() {
		return apperrors.ErrConflict
	}

	// Вопросы обычно предзагружены реестром; если нет - пробуем сейчас.
	// При неудаче комната остается в лобби, старт можно повторить.
	if len(a.questions) == 0 {
		questions, err := a.deps.QuestionRepo.GetByQuizID(a.room.QuizID)
		if err != nil {
			log.Printf("[RoomActor %d] Не удалось загрузить вопросы викторины %d: %v", a.room.ID, a.room.QuizID, err)
			return apperrors.ErrUpstreamUnavailable
		}
		a.questions = questions
	}
	if len(a.questions) == 0 {
		return apperrors.ErrValidation
	}

	if a.room.ShuffleQuestions {
		rand.Shuffle(len(a.questions), func(i, j int) {
			a.questions[i], a.questions[j] = a.questions[j], a.questions[i]
		})
	}
	order := make(entity.UintArray, len(a.questions))
	for i := range a.questions {
		order[i] = a.questions[i].ID
	}
	a.room.QuestionOrder = order

	now := time.Now()
	a.room.Status = entity.RoomStatusActive
	a.room.StartedAt = &now
	a.persistStatusAsync(entity.RoomStatusActive)

	a.emit(Event{
		Type: EventRoomStarted,
		Payload: RoomStartedPayload{
			QuestionCount: len(a.questions),
			TimeMode:      a.room.TimeMode,
			StartedAt:     now.UTC().Format(time.RFC3339),
		},
	})
	log.Printf("[RoomActor %d] Викторина запущена: %d вопросов, режим %s", a.room.ID, len(a.questions), a.room.TimeMode)

	// Общий лимит серии в режиме total_time. У него свое поколение:
	// смена вопросов не должна снимать дедлайн всей серии.
	if a.room.TimeMode == entity.TimeModeTotalTime && a.room.TotalTimeLimitSec > 0 {
		a.roomGen++
		a.roomTmr = a.armTimer(time.Duration(a.room.TotalTimeLimitSec)*time.Second,
			timerTickCmd{generation: a.roomGen, room: true},
			totalTimeExpiredCmd{generation: a.roomGen})
	}

	a.showQuestion(0)
	return nil
}

func (a *Actor) handlePause(actorID string) error {
	if err := a.requireTeacher(actorID); err != nil {
		return err
	}
	if a.room.IsEnded() {
		return apperrors.ErrRoomClosed
	}
	if !a.room.IsActive() {
		return apperrors.ErrConflict
	}

	a.generation++
	a.roomGen++
	a.elapsedBeforePause += time.Since(a.questionShownAt)
	a.pausedQuestionLeft = 0
	a.pausedRoomLeft = 0
	if a.questionTmr != nil {
		a.pausedQuestionLeft = a.questionTmr.Stop()
		a.questionTmr = nil
	}
	if a.roomTmr != nil {
		a.pausedRoomLeft = a.roomTmr.Stop()
		a.roomTmr = nil
	}

	a.room.Status = entity.RoomStatusPaused
	a.persistStatusAsync(entity.RoomStatusPaused)

	a.emit(Event{
		Type:    EventRoomPaused,
		Payload: RoomPausedPayload{RemainingMs: a.pausedQuestionLeft.Milliseconds()},
	})
	log.Printf("[RoomActor %d] Пауза, осталось %s на вопрос", a.room.ID, a.pausedQuestionLeft)
	return nil
}

func (a *Actor) handleResume(actorID string) error {
	if err := a.requireTeacher(actorID); err != nil {
		return err
	}
	if a.room.IsEnded() {
		return apperrors.ErrRoomClosed
	}
	if !a.room.IsPaused() {
		return apperrors.ErrConflict
	}

	a.generation++
	a.questionShownAt = time.Now()
	a.room.Status = entity.RoomStatusActive
	a.persistStatusAsync(entity.RoomStatusActive)

	var deadline *time.Time
	if a.pausedQuestionLeft > 0 {
		a.questionTmr = a.armTimer(a.pausedQuestionLeft,
			timerTickCmd{generation: a.generation}, advanceCmd{generation: a.generation})
		deadline = deadlineIn(a.pausedQuestionLeft)
	}
	if a.pausedRoomLeft > 0 {
		a.roomGen++
		a.roomTmr = a.armTimer(a.pausedRoomLeft,
			timerTickCmd{generation: a.roomGen, room: true},
			totalTimeExpiredCmd{generation: a.roomGen})
	}

	a.emit(Event{
		Type:    EventRoomResumed,
		Payload: RoomResumedPayload{Deadline: deadline},
	})
	log.Printf("[RoomActor %d] Возобновление, отсчет продолжен", a.room.ID)
	return nil
}

func (a *Actor) handleEnd(actorID, reason string) error {
	if err := a.requireTeacher(actorID); err != nil {
		return err
	}
	if a.room.IsEnded() {
		return apperrors.ErrRoomClosed
	}
	a.endRoom(reason)
	return nil
}

func (a *Actor) handleAdvance(c advanceCmd) error {
	if c.manual {
		if err := a.requireTeacher(c.actorID); err != nil {
			return err
		}
		if a.room.IsEnded() {
			return apperrors.ErrRoomClosed
		}
		if !a.room.IsActive() {
			return apperrors.ErrConflict
		}
	} else {
		// Срабатывание таймера: устаревшее поколение молча игнорируем
		if c.generation != a.generation || !a.room.IsActive() {
			return nil
		}
	}

	next := a.room.CurrentQuestionIndex + 1
	if next >= len(a.questions) {
		a.endRoom("questions_exhausted")
		return nil
	}
	a.showQuestion(next)
	return nil
}

func (a *Actor) handleSubmit(req SubmitRequest) error {
	p, ok := a.participants[req.ParticipantID]
	if !ok || p.departed {
		return apperrors.ErrNotFound
	}
	if p.IsTeacher() {
		return apperrors.ErrForbidden
	}
	if a.room.IsEnded() {
		return apperrors.ErrRoomClosed
	}
	// Ответы принимаются только пока вопрос идет: пауза закрывает окно приема
	if !a.room.IsActive() || a.room.CurrentQuestionIndex < 0 {
		return apperrors.ErrNotActiveQuestion
	}

	q := &a.questions[a.room.CurrentQuestionIndex]
	if req.QuestionID != q.ID {
		return apperrors.ErrNotActiveQuestion
	}
	if p.HasAnswered(q.ID) {
		return apperrors.ErrDuplicateSubmission
	}
	if len(req.SelectedOptionIDs) == 0 {
		return apperrors.ErrValidation
	}
	for _, id := range req.SelectedOptionIDs {
		if !q.IsValidOption(id) {
			return apperrors.ErrValidation
		}
	}

	serverElapsed := a.elapsedBeforePause + time.Since(a.questionShownAt)
	timeSpentMs := clampTimeSpent(req.TimeSpentMs, serverElapsed.Milliseconds())
	limitMs := int64(a.room.EffectiveTimeLimitSec(q)) * 1000

	res := scoreSubmission(q, a.room.TimeMode, req.SelectedOptionIDs, timeSpentMs, limitMs)

	submission := entity.AnswerSubmission{
		ParticipantID:     p.ID,
		QuestionID:        q.ID,
		RoomID:            a.room.ID,
		SelectedOptionIDs: entity.UintArray(req.SelectedOptionIDs),
		TimeSpentMs:       timeSpentMs,
		IsCorrect:         res.IsCorrect,
		ScoreAwarded:      res.ScoreAwarded,
		SubmittedAt:       time.Now(),
	}
	p.Answers = append(p.Answers, submission)
	p.Score += res.ScoreAwarded
	if res.IsCorrect {
		p.CorrectAnswers++
	}

	ack := AnswerAcknowledgedPayload{
		QuestionID:  q.ID,
		TimeSpentMs: timeSpentMs,
		Selected:    submission.SelectedOptionIDs,
	}
	// Правильность раскрываем отвечающему только при политике immediately
	if a.room.ShowAnswersWhen == entity.ShowAnswersImmediately {
		isCorrect := res.IsCorrect
		awarded := res.ScoreAwarded
		ack.IsCorrect = &isCorrect
		ack.ScoreAwarded = &awarded
		ack.Reveal = &QuestionReveal{QuestionID: q.ID, CorrectOptionIDs: q.CorrectOptionIDs}
	}

	a.emit(
		Event{
			Type:                EventAnswerAcknowledged,
			TargetParticipantID: p.ID,
			Payload:             ack,
		},
		Event{
			Type:        EventScoreUpdated,
			TeacherOnly: true,
			Payload: ScoreUpdatedPayload{
				ParticipantID: p.ID,
				DisplayName:   p.DisplayName,
				QuestionID:    q.ID,
				IsCorrect:     res.IsCorrect,
				ScoreAwarded:  res.ScoreAwarded,
				TotalScore:    p.Score,
				AnsweredCount: a.answeredCount(q.ID),
			},
		},
	)
	return nil
}

func (a *Actor) handleTimerTick(c timerTickCmd) {
	if c.room {
		// Пока взведен таймер вопроса, секундные тики шлет он
		if c.generation != a.roomGen || a.questionTmr != nil {
			return
		}
	} else if c.generation != a.generation {
		return
	}
	if !a.room.IsActive() || a.room.CurrentQuestionIndex < 0 {
		return
	}
	var remaining time.Duration
	switch {
	case a.questionTmr != nil:
		remaining = a.questionTmr.Remaining()
	case a.roomTmr != nil:
		remaining = a.roomTmr.Remaining()
	default:
		return
	}
	a.emit(Event{
		Type: EventRoomTimer,
		Payload: RoomTimerPayload{
			QuestionID:  a.questions[a.room.CurrentQuestionIndex].ID,
			RemainingMs: remaining.Milliseconds(),
		},
	})
}

func (a *Actor) handleTotalTimeExpired(gen uint64) {
	if gen != a.roomGen || !a.room.IsActive() {
		return
	}
	log.Printf("[RoomActor %d] Истек общий лимит времени", a.room.ID)
	a.endRoom("time_expired")
}

func (a *Actor) handleIdleCheck() {
	if !a.room.IsWaiting() {
		return
	}
	if time.Since(a.lastActivity) < a.cfg.IdleWaitingTimeout {
		return
	}
	log.Printf("[RoomActor %d] Лобби простаивает дольше %s, закрываем комнату", a.room.ID, a.cfg.IdleWaitingTimeout)
	a.endRoom("idle_timeout")
}

// --- Внутренние переходы ---

// showQuestion показывает вопрос с данным индексом и взводит таймер.
// Каждый показ увеличивает поколение: устаревшие срабатывания таймеров
// предыдущего вопроса после этого игнорируются.
func (a *Actor) showQuestion(idx int) {
	prevIdx := a.room.CurrentQuestionIndex
	a.generation++
	a.room.CurrentQuestionIndex = idx
	a.questionShownAt = time.Now()
	a.elapsedBeforePause = 0

	if a.questionTmr != nil {
		a.questionTmr.Stop()
		a.questionTmr = nil
	}

	q := &a.questions[idx]
	limit := a.room.EffectiveTimeLimitSec(q)
	var deadline *time.Time
	if limit > 0 {
		d := time.Duration(limit) * time.Second
		a.questionTmr = a.armTimer(d,
			timerTickCmd{generation: a.generation}, advanceCmd{generation: a.generation})
		deadline = deadlineIn(d)
	}

	payload := QuestionAdvancedPayload{Question: a.questionView(idx, deadline)}
	// Политика immediately: вместе с новым вопросом раскрываем предыдущий
	if a.room.ShowAnswersWhen == entity.ShowAnswersImmediately && prevIdx >= 0 && prevIdx < len(a.questions) {
		prev := &a.questions[prevIdx]
		payload.Reveal = &QuestionReveal{QuestionID: prev.ID, CorrectOptionIDs: prev.CorrectOptionIDs}
	}

	a.emit(Event{Type: EventQuestionAdvanced, Payload: payload})
	log.Printf("[RoomActor %d] Вопрос %d/%d (id=%d), лимит %d сек", a.room.ID, idx+1, len(a.questions), q.ID, limit)
}

// endRoom переводит комнату в терминальное состояние и запускает
// асинхронную запись результатов
func (a *Actor) endRoom(reason string) {
	a.generation++
	a.roomGen++
	if a.questionTmr != nil {
		a.questionTmr.Stop()
		a.questionTmr = nil
	}
	if a.roomTmr != nil {
		a.roomTmr.Stop()
		a.roomTmr = nil
	}

	now := time.Now()
	a.room.Status = entity.RoomStatusEnded
	a.room.EndedAt = &now
	a.persistStatusAsync(entity.RoomStatusEnded)

	payload := RoomEndedPayload{
		Reason:      reason,
		Leaderboard: a.leaderboard(),
	}
	if a.room.ShowAnswersWhen == entity.ShowAnswersAfterQuiz {
		for i := range a.questions {
			payload.Reveals = append(payload.Reveals, QuestionReveal{
				QuestionID:       a.questions[i].ID,
				CorrectOptionIDs: a.questions[i].CorrectOptionIDs,
			})
		}
	}
	a.emit(Event{Type: EventRoomEnded, Payload: payload})
	log.Printf("[RoomActor %d] Комната завершена: %s", a.room.ID, reason)

	a.persistFinalResults()

	if a.deps.Presence != nil {
		go func(roomID uint) {
			if err := a.deps.Presence.ClearRoom(roomID); err != nil {
				log.Printf("[RoomActor %d] Ошибка очистки маркеров присутствия: %v", roomID, err)
			}
		}(a.room.ID)
	}
}

// persistFinalResults записывает итоговые результаты в хранилище.
// Работает в отдельной горутине над глубокой копией, чтобы не держать
// актор и не гоняться с его состоянием; при ошибках повторяет с паузами.
func (a *Actor) persistFinalResults() {
	parts := make([]entity.Participant, 0, len(a.participants))
	for _, p := range a.participants {
		cp := *p.Participant
		cp.Answers = make([]entity.AnswerSubmission, len(p.Answers))
		copy(cp.Answers, p.Answers)
		// Инвариант: счет равен сумме очков по ответам
		if score, correct := cp.ReplayScore(); score != cp.Score || correct != cp.CorrectAnswers {
			log.Printf("[RoomActor %d] ВНИМАНИЕ: расхождение счета участника %s (%d != %d), исправляем по ответам",
				a.room.ID, cp.ID, cp.Score, score)
			cp.Score = score
			cp.CorrectAnswers = correct
		}
		parts = append(parts, cp)
	}

	roomID := a.room.ID
	repo := a.deps.ResultRepo
	maxRetries := a.cfg.PersistMaxRetries
	backoff := a.cfg.PersistBackoff

	go func() {
		for attempt := 1; attempt <= maxRetries; attempt++ {
			err := repo.SaveFinalResults(roomID, parts)
			if err == nil {
				log.Printf("[RoomActor %d] Результаты сохранены: %d участников", roomID, len(parts))
				return
			}
			log.Printf("[RoomActor %d] Попытка %d/%d сохранения результатов не удалась: %v",
				roomID, attempt, maxRetries, err)
			if attempt < maxRetries {
				time.Sleep(backoff * time.Duration(attempt))
			}
		}
		log.Printf("[RoomActor %d] КРИТИЧНО: результаты так и не сохранены после %d попыток", roomID, maxRetries)
	}()
}

// persistStatusAsync обновляет статус комнаты в БД, не блокируя актор
func (a *Actor) persistStatusAsync(status string) {
	if a.deps.RoomRepo == nil {
		return
	}
	roomID := a.room.ID
	repo := a.deps.RoomRepo
	go func() {
		if err := repo.UpdateStatus(roomID, status); err != nil {
			log.Printf("[RoomActor %d] Ошибка обновления статуса %s в БД: %v", roomID, status, err)
		}
	}()
}

// --- Вспомогательные ---

func (a *Actor) requireTeacher(participantID string) error {
	p, ok := a.participants[participantID]
	if !ok || p.departed || !p.IsTeacher() {
		return apperrors.ErrForbidden
	}
	return nil
}

func (a *Actor) departParticipant(p *participantState) {
	p.departed = true
	p.ConnectionState = entity.ConnectionStateDisconnected
	p.graceGen++
	if a.byUserID[p.UserID] == p.ID {
		delete(a.byUserID, p.UserID)
	}
	if a.deps.Presence != nil {
		if err := a.deps.Presence.ClearDisconnected(a.room.ID, p.ID); err != nil {
			log.Printf("[RoomActor %d] Ошибка очистки grace-маркера %s: %v", a.room.ID, p.ID, err)
		}
		if _, err := a.deps.Presence.DecrOccupancy(a.room.ID); err != nil {
			log.Printf("[RoomActor %d] Ошибка счетчика занятости: %v", a.room.ID, err)
		}
	}
}

// activeCount - участники в комнате (включая учителя)
func (a *Actor) activeCount() int {
	n := 0
	for _, p := range a.participants {
		if !p.departed {
			n++
		}
	}
	return n
}

// activeStudents - студенты в комнате; лимит maxParticipants считается по ним
func (a *Actor) activeStudents() int {
	n := 0
	for _, p := range a.participants {
		if !p.departed && !p.IsTeacher() {
			n++
		}
	}
	return n
}

// answeredCount - сколько активных студентов уже ответили на вопрос
func (a *Actor) answeredCount(questionID uint) int {
	n := 0
	for _, p := range a.participants {
		if !p.departed && !p.IsTeacher() && p.HasAnswered(questionID) {
			n++
		}
	}
	return n
}

func (a *Actor) viewOf(p *participantState) ParticipantView {
	return ParticipantView{
		ID:              p.ID,
		DisplayName:     p.DisplayName,
		Role:            p.Role,
		ConnectionState: p.ConnectionState,
		Score:           p.Score,
		CorrectAnswers:  p.CorrectAnswers,
	}
}

func (a *Actor) participantViews() []ParticipantView {
	views := make([]ParticipantView, 0, len(a.participants))
	for _, p := range a.participants {
		if !p.departed {
			views = append(views, a.viewOf(p))
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].DisplayName < views[j].DisplayName })
	return views
}

// leaderboard - таблица результатов по убыванию счета.
// Включает и вышедших: их ответы остаются в итогах сессии.
func (a *Actor) leaderboard() []ParticipantView {
	views := make([]ParticipantView, 0, len(a.participants))
	for _, p := range a.participants {
		if p.IsTeacher() {
			continue
		}
		views = append(views, a.viewOf(p))
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Score != views[j].Score {
			return views[i].Score > views[j].Score
		}
		if views[i].CorrectAnswers != views[j].CorrectAnswers {
			return views[i].CorrectAnswers > views[j].CorrectAnswers
		}
		return views[i].DisplayName < views[j].DisplayName
	})
	return views
}

func (a *Actor) questionView(idx int, deadline *time.Time) QuestionView {
	q := &a.questions[idx]
	return QuestionView{
		ID:           q.ID,
		Index:        idx,
		Total:        len(a.questions),
		Text:         q.Text,
		Options:      q.Options,
		TimeLimitSec: a.room.EffectiveTimeLimitSec(q),
		Deadline:     deadline,
	}
}

// buildSnapshotEvent собирает полное состояние комнаты для участника.
// Снапшот несет текущий номер последовательности: клиент знает,
// с какого места начнутся дальнейшие рассылочные события.
func (a *Actor) buildSnapshotEvent(participantID string) (Event, error) {
	if _, ok := a.participants[participantID]; !ok {
		return Event{}, apperrors.ErrNotFound
	}

	payload := StateSnapshotPayload{
		RoomID:        a.room.ID,
		AccessCode:    a.room.AccessCode,
		Status:        a.room.Status,
		ParticipantID: participantID,
		Participants:  a.participantViews(),
		Leaderboard:   a.leaderboard(),
	}

	if a.room.CurrentQuestionIndex >= 0 && a.room.CurrentQuestionIndex < len(a.questions) && !a.room.IsEnded() {
		var deadline *time.Time
		var remaining time.Duration
		if a.room.IsPaused() {
			remaining = a.pausedQuestionLeft
		} else if a.questionTmr != nil {
			remaining = a.questionTmr.Remaining()
			deadline = &a.questionTmr.deadline
		}
		qv := a.questionView(a.room.CurrentQuestionIndex, deadline)
		payload.Question = &qv
		payload.RemainingMs = remaining.Milliseconds()
	}

	return Event{
		Type:                EventStateSnapshot,
		RoomID:              a.room.ID,
		Sequence:            a.seq,
		Payload:             payload,
		EmittedAt:           time.Now(),
		TargetParticipantID: participantID,
	}, nil
}

package websocket

import (
	"encoding/json"
	"log"

	"github.com/yourusername/classquiz-api/internal/service/roomengine"
)

// DisconnectNotifier получает уведомления об обрыве соединений участников.
// Реализуется движком комнат: обрыв открывает grace-окно переподключения.
type DisconnectNotifier interface {
	NotifyDisconnect(roomID uint, participantID string)
}

// outboundEvent - одно событие движка, уже сериализованное, с адресатом
type outboundEvent struct {
	roomID      uint
	teacherOnly bool
	targetID    string
	message     []byte
}

type bindRequest struct {
	client        *Client
	roomID        uint
	participantID string
	// unbind очищает привязку вместо установки новой
	unbind bool
	done   chan struct{}
}

type disconnectRequest struct {
	roomID        uint
	participantID string
	reason        string
}

// hubWork - единица работы цикла хаба: пачка событий либо принудительное
// отключение. Оба вида идут через один канал, поэтому порядок отправителя
// сохраняется: событие об исключении доставляется раньше, чем закроется
// соединение исключенного.
type hubWork struct {
	batch      []outboundEvent
	disconnect *disconnectRequest
}

// RoomHub доставляет события комнат подключенным клиентам.
// Все структуры хаба принадлежат одной горутине run(): регистрация,
// привязка к комнатам и рассылка сериализуются через каналы.
type RoomHub struct {
	register   chan *Client
	unregister chan *Client
	bind       chan bindRequest
	work       chan hubWork
	done       chan struct{}

	// Доступ только из run()
	clients       map[*Client]bool
	rooms         map[uint]map[*Client]bool
	byParticipant map[uint]map[string]*Client

	notifier DisconnectNotifier
	mirror   *EventMirror
	metrics  *HubMetrics
}

// NewRoomHub создает хаб комнат
func NewRoomHub() *RoomHub {
	return &RoomHub{
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		bind:          make(chan bindRequest),
		work:          make(chan hubWork, 256),
		done:          make(chan struct{}),
		clients:       make(map[*Client]bool),
		rooms:         make(map[uint]map[*Client]bool),
		byParticipant: make(map[uint]map[string]*Client),
		metrics:       NewHubMetrics(),
	}
}

// SetDisconnectNotifier задает получателя уведомлений об обрывах.
// Вызывается при сборке приложения до Run.
func (h *RoomHub) SetDisconnectNotifier(n DisconnectNotifier) {
	h.notifier = n
}

// SetMirror подключает зеркалирование событий между инстансами
func (h *RoomHub) SetMirror(m *EventMirror) {
	h.mirror = m
}

// Run запускает цикл хаба. Блокирует вызывающую горутину.
func (h *RoomHub) Run() {
	log.Printf("[RoomHub] Запущен")
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.metrics.ClientConnected()

		case c := <-h.unregister:
			h.removeClient(c, true)

		case req := <-h.bind:
			if req.unbind {
				h.unbindClient(req.client)
			} else {
				h.bindClient(req)
			}
			close(req.done)

		case w := <-h.work:
			for _, ev := range w.batch {
				h.deliver(ev)
			}
			if w.disconnect != nil {
				h.disconnectParticipant(*w.disconnect)
			}

		case <-h.done:
			for c := range h.clients {
				c.CloseSend()
			}
			log.Printf("[RoomHub] Остановлен, снято %d клиентов", len(h.clients))
			return
		}
	}
}

// Shutdown останавливает цикл хаба
func (h *RoomHub) Shutdown() {
	close(h.done)
}

// ClientCount возвращает число подключенных клиентов
func (h *RoomHub) ClientCount() int {
	return h.metrics.ConnectedClients()
}

// GetMetrics возвращает метрики хаба
func (h *RoomHub) GetMetrics() map[string]interface{} {
	return h.metrics.Snapshot()
}

// --- Реализация roomengine.Broadcaster ---

// BroadcastToRoom доставляет пачку событий комнаты.
// Вызывается актором комнаты; сериализация происходит здесь,
// чтобы не держать горутину актора на медленных клиентах.
func (h *RoomHub) BroadcastToRoom(roomID uint, events []roomengine.Event) {
	batch := make([]outboundEvent, 0, len(events))
	for i := range events {
		data, err := json.Marshal(&events[i])
		if err != nil {
			log.Printf("[RoomHub] Ошибка сериализации события %s комнаты %d: %v", events[i].Type, roomID, err)
			continue
		}
		batch = append(batch, outboundEvent{
			roomID:      roomID,
			teacherOnly: events[i].TeacherOnly,
			targetID:    events[i].TargetParticipantID,
			message:     data,
		})
	}
	if len(batch) == 0 {
		return
	}

	select {
	case h.work <- hubWork{batch: batch}:
	case <-h.done:
		return
	}

	if h.mirror != nil {
		h.mirror.PublishBatch(batch)
	}
}

// DisconnectParticipant принудительно закрывает подключение участника.
// Запрос встает в общую очередь за уже отправленными событиями: участник
// успевает получить событие о своем исключении до закрытия соединения.
func (h *RoomHub) DisconnectParticipant(roomID uint, participantID string, reason string) {
	req := disconnectRequest{roomID: roomID, participantID: participantID, reason: reason}
	select {
	case h.work <- hubWork{disconnect: &req}:
	case <-h.done:
	}
}

// --- Методы для обработчиков сообщений ---

// BindClient привязывает клиента к комнате после успешного входа.
// Новое подключение того же участника вытесняет старое.
func (h *RoomHub) BindClient(c *Client, roomID uint, participantID string) {
	req := bindRequest{client: c, roomID: roomID, participantID: participantID, done: make(chan struct{})}
	select {
	case h.bind <- req:
		<-req.done
	case <-h.done:
	}
}

// UnbindClient снимает привязку клиента к комнате, не закрывая соединение
func (h *RoomHub) UnbindClient(c *Client) {
	req := bindRequest{client: c, unbind: true, done: make(chan struct{})}
	select {
	case h.bind <- req:
		<-req.done
	case <-h.done:
	}
}

// deliverRemote применяет событие, пришедшее от другого инстанса
func (h *RoomHub) deliverRemote(ev outboundEvent) {
	select {
	case h.work <- hubWork{batch: []outboundEvent{ev}}:
	case <-h.done:
	}
}

// --- Внутренние методы (только из run) ---

func (h *RoomHub) bindClient(req bindRequest) {
	c := req.client
	if !h.clients[c] {
		// Клиент успел отключиться, привязывать нечего
		return
	}

	byPart := h.byParticipant[req.roomID]
	if byPart == nil {
		byPart = make(map[string]*Client)
		h.byParticipant[req.roomID] = byPart
	}

	// Вытесняем предыдущее подключение этой же идентичности
	if old, ok := byPart[req.participantID]; ok && old != c {
		log.Printf("[RoomHub] Участник %s переподключился, вытесняем старое соединение %s",
			req.participantID, old.ConnectionID)
		h.removeClient(old, false)
		old.CloseSend()
	}

	byPart[req.participantID] = c

	roomClients := h.rooms[req.roomID]
	if roomClients == nil {
		roomClients = make(map[*Client]bool)
		h.rooms[req.roomID] = roomClients
	}
	roomClients[c] = true

	c.BindRoom(req.roomID, req.participantID)
}

func (h *RoomHub) unbindClient(c *Client) {
	roomID := c.RoomID()
	pid := c.ParticipantID()
	if roomID == 0 || pid == "" {
		return
	}

	if roomClients, ok := h.rooms[roomID]; ok {
		delete(roomClients, c)
		if len(roomClients) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if byPart, ok := h.byParticipant[roomID]; ok && byPart[pid] == c {
		delete(byPart, pid)
		if len(byPart) == 0 {
			delete(h.byParticipant, roomID)
		}
	}

	c.BindRoom(0, "")
}

// removeClient убирает клиента из всех структур хаба.
// notify - сообщать ли движку об обрыве (false при вытеснении:
// идентичность остается подключенной через новое соединение).
func (h *RoomHub) removeClient(c *Client, notify bool) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	h.metrics.ClientDisconnected()

	roomID := c.RoomID()
	pid := c.ParticipantID()
	if roomID == 0 || pid == "" {
		c.CloseSend()
		return
	}

	if roomClients, ok := h.rooms[roomID]; ok {
		delete(roomClients, c)
		if len(roomClients) == 0 {
			delete(h.rooms, roomID)
		}
	}
	// Снимаем привязку идентичности, только если она указывает на этого клиента
	if byPart, ok := h.byParticipant[roomID]; ok && byPart[pid] == c {
		delete(byPart, pid)
		if len(byPart) == 0 {
			delete(h.byParticipant, roomID)
		}
		if notify && h.notifier != nil {
			h.notifier.NotifyDisconnect(roomID, pid)
		}
	}

	c.CloseSend()
}

// deliver доставляет одно событие с учетом адресата.
// Отправка неблокирующая: клиент с переполненным буфером теряет событие,
// а после maxBufferOverflows подряд отключается.
func (h *RoomHub) deliver(ev outboundEvent) {
	if ev.targetID != "" {
		if byPart, ok := h.byParticipant[ev.roomID]; ok {
			if c, ok := byPart[ev.targetID]; ok {
				h.send(c, ev.message)
			}
		}
		return
	}

	for c := range h.rooms[ev.roomID] {
		if ev.teacherOnly && !c.IsTeacher() {
			continue
		}
		h.send(c, ev.message)
	}
}

func (h *RoomHub) send(c *Client, message []byte) {
	if c.enqueue(message) {
		h.metrics.MessageSent()
		return
	}
	h.metrics.MessageDropped()
	if c.overflowCount.Load() >= maxBufferOverflows {
		log.Printf("[RoomHub] Клиент %s не успевает читать, отключаем", c.ConnectionID)
		h.removeClient(c, true)
	}
}

func (h *RoomHub) disconnectParticipant(req disconnectRequest) {
	byPart, ok := h.byParticipant[req.roomID]
	if !ok {
		return
	}
	c, ok := byPart[req.participantID]
	if !ok {
		return
	}
	log.Printf("[RoomHub] Принудительное отключение участника %s комнаты %d: %s",
		req.participantID, req.roomID, req.reason)
	// Движок уже оформил уход участника, уведомление не нужно
	h.removeClient(c, false)
}

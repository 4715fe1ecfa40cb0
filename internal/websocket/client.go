package websocket

import (
	"bytes"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Время, которое разрешено писать сообщение клиенту.
	writeWait = 10 * time.Second

	// Время, которое разрешено клиенту читать следующее сообщение.
	pongWait = 30 * time.Second

	// Периодичность отправки ping-сообщений клиенту.
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер входящего сообщения
	maxMessageSize = 4096

	// Размер буфера канала отправки сообщений клиенту
	defaultClientBufferSize = 128

	// Сколько раз буфер может переполниться, прежде чем клиент будет отключен
	maxBufferOverflows = 3
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client является посредником между WebSocket соединением и хабом.
// Одно подключение одного участника; при повторном подключении того же
// участника старый клиент вытесняется.
type Client struct {
	// ID пользователя платформы
	UserID uint

	// Роль в комнате: teacher или student
	Role string

	// Отображаемое имя из тикета аутентификации
	DisplayName string

	// Идентичность участника в комнате; присваивается при room:join
	participantID atomic.Value // string

	// ID комнаты, к которой привязан клиент (0 до входа)
	roomID atomic.Uint32

	// Уникальный ID для каждого соединения
	ConnectionID string

	hub  *RoomHub
	conn *websocket.Conn

	// Буферизованный канал для исходящих сообщений
	send chan []byte

	// Флаг закрытия канала send (для предотвращения panic)
	sendClosed atomic.Bool

	lastActivity time.Time

	// Счетчик переполнений буфера отправки
	overflowCount atomic.Int32

	mu sync.Mutex
}

// NewClient создает нового клиента
func NewClient(hub *RoomHub, conn *websocket.Conn, userID uint, role string) *Client {
	c := &Client{
		UserID:       userID,
		Role:         role,
		ConnectionID: uuid.New().String(),
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, defaultClientBufferSize),
		lastActivity: time.Now(),
	}
	c.participantID.Store("")
	return c
}

// BindRoom привязывает клиента к комнате после успешного room:join
func (c *Client) BindRoom(roomID uint, participantID string) {
	c.roomID.Store(uint32(roomID))
	c.participantID.Store(participantID)
	log.Printf("[Client %s] Привязан к комнате %d как участник %s", c.ConnectionID, roomID, participantID)
}

// UnbindRoom снимает привязку клиента к комнате после room:leave.
// Соединение остается открытым: клиент может войти в другую комнату.
func (c *Client) UnbindRoom() {
	c.hub.UnbindClient(c)
}

// RoomID возвращает ID комнаты клиента (0 - не в комнате)
func (c *Client) RoomID() uint {
	return uint(c.roomID.Load())
}

// ParticipantID возвращает идентичность участника ("" - не в комнате)
func (c *Client) ParticipantID() string {
	return c.participantID.Load().(string)
}

// IsTeacher проверяет роль клиента
func (c *Client) IsTeacher() bool {
	return c.Role == "teacher"
}

// readPump читает сообщения от клиента и передает их обработчику
func (c *Client) readPump(messageHandler func(message []byte, client *Client) error) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		log.Printf("[Client %s] Read pump остановлен (user %d)", c.ConnectionID, c.UserID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.lastActivity = time.Now()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[Client %s] Ошибка чтения: %v", c.ConnectionID, err)
			}
			break
		}

		c.lastActivity = time.Now()

		if handlerErr := safeHandleMessage(message, c, messageHandler); handlerErr != nil {
			log.Printf("[Client %s] Фатальная ошибка обработчика: %v. Закрываем соединение.", c.ConnectionID, handlerErr)
			break
		}

		// Живой клиент читает свои сообщения - прощаем прошлые переполнения
		c.overflowCount.Store(0)
	}
}

// safeHandleMessage - обертка для вызова обработчика с recover.
// Паника в обработчике не должна ронять процесс.
func safeHandleMessage(message []byte, client *Client, messageHandler func(message []byte, client *Client) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Client %s] PANIC в обработчике сообщения: %v\n%s", client.ConnectionID, r, string(debug.Stack()))
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()
	message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
	if messageHandler == nil {
		log.Printf("[Client %s] Нет зарегистрированного обработчика сообщений", client.ConnectionID)
		return nil
	}
	return messageHandler(message, client)
}

// writePump отправляет сообщения клиенту из канала send
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		log.Printf("[Client %s] Write pump остановлен", c.ConnectionID)
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// Хаб закрыл канал клиента
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(message); err != nil {
				log.Printf("[Client %s] Ошибка записи: %v", c.ConnectionID, err)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// StartPumps регистрирует клиента в хабе и запускает горутины чтения и записи
func (c *Client) StartPumps(messageHandler func(message []byte, client *Client) error) {
	c.hub.register <- c
	go c.writePump()
	go c.readPump(messageHandler)
}

// enqueue ставит сообщение в буфер отправки без блокировки.
// Возвращает false при переполнении: медленный получатель не должен
// задерживать рассылку остальным.
func (c *Client) enqueue(message []byte) bool {
	if c.sendClosed.Load() {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		n := c.overflowCount.Add(1)
		log.Printf("[Client %s] Переполнение буфера отправки (%d/%d), сообщение отброшено",
			c.ConnectionID, n, maxBufferOverflows)
		return false
	}
}

// CloseSend безопасно закрывает канал send (только один раз)
func (c *Client) CloseSend() bool {
	if c.sendClosed.CompareAndSwap(false, true) {
		close(c.send)
		return true
	}
	return false
}

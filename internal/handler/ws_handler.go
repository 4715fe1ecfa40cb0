package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	apperrors "github.com/yourusername/classquiz-api/internal/pkg/errors"
	"github.com/yourusername/classquiz-api/internal/service/roomengine"
	"github.com/yourusername/classquiz-api/internal/websocket"
	"github.com/yourusername/classquiz-api/pkg/auth"
)

// Сколько времени даем команде на проход через очередь актора
const commandTimeout = 5 * time.Second

// WSHandler обрабатывает WebSocket соединения
type WSHandler struct {
	wsHub      *websocket.RoomHub
	wsManager  *websocket.Manager
	registry   *roomengine.Registry
	jwtService *auth.JWTService
}

// NewWSHandler создает новый обработчик WebSocket
func NewWSHandler(
	wsHub *websocket.RoomHub,
	wsManager *websocket.Manager,
	registry *roomengine.Registry,
	jwtService *auth.JWTService,
) *WSHandler {
	handler := &WSHandler{
		wsHub:      wsHub,
		wsManager:  wsManager,
		registry:   registry,
		jwtService: jwtService,
	}

	// Регистрируем обработчики сообщений один раз при создании обработчика
	handler.registerMessageHandlers()

	return handler
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// Пустой Origin - не браузерный клиент (мобильное приложение, curl и т.д.)
		if origin == "" {
			return true
		}

		// Список разрешенных origin (синхронизирован с CORS в main.go)
		allowedOrigins := []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}

		for _, allowed := range allowedOrigins {
			if origin == allowed {
				return true
			}
		}

		log.Printf("WebSocket: rejected unauthorized origin: %s", origin)
		return false
	},
	EnableCompression: true,
}

// HandleConnection обрабатывает входящее WebSocket соединение
func (h *WSHandler) HandleConnection(c *gin.Context) {
	// Получаем тикет из запроса (?ticket=...), не логируем его
	ticket := c.Query("ticket")
	if ticket == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authentication ticket parameter"})
		return
	}

	claims, err := h.jwtService.ParseWSTicket(ticket)
	if err != nil {
		log.Printf("WebSocket: Invalid or expired ticket - %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired ticket"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Error upgrading connection: %v", err)
		return
	}

	log.Printf("WebSocket: Connection upgraded for UserID: %d", claims.UserID)

	client := websocket.NewClient(h.wsHub, conn, claims.UserID, claims.Role)
	client.DisplayName = claims.DisplayName

	client.StartPumps(h.wsManager.HandleMessage)
}

// registerMessageHandlers регистрирует обработчики для различных типов сообщений
func (h *WSHandler) registerMessageHandlers() {
	h.wsManager.RegisterHandler(websocket.RoomJoin, h.handleRoomJoin)
	h.wsManager.RegisterHandler(websocket.RoomLeave, h.handleRoomLeave)
	h.wsManager.RegisterHandler(websocket.RoomSubmitAnswer, h.handleSubmitAnswer)
	h.wsManager.RegisterHandler(websocket.RoomHeartbeat, h.handleHeartbeat)

	// Команды учителя: проверка прав выполняется актором комнаты
	h.wsManager.RegisterHandler(websocket.RoomStart, h.teacherCommand(func(ctx context.Context, a *roomengine.Actor, pid string) error {
		return a.Start(ctx, pid)
	}))
	h.wsManager.RegisterHandler(websocket.RoomPause, h.teacherCommand(func(ctx context.Context, a *roomengine.Actor, pid string) error {
		return a.Pause(ctx, pid)
	}))
	h.wsManager.RegisterHandler(websocket.RoomResume, h.teacherCommand(func(ctx context.Context, a *roomengine.Actor, pid string) error {
		return a.Resume(ctx, pid)
	}))
	h.wsManager.RegisterHandler(websocket.RoomNext, h.teacherCommand(func(ctx context.Context, a *roomengine.Actor, pid string) error {
		return a.Advance(ctx, pid)
	}))
	h.wsManager.RegisterHandler(websocket.RoomEnd, h.teacherCommand(func(ctx context.Context, a *roomengine.Actor, pid string) error {
		return a.End(ctx, pid)
	}))
	h.wsManager.RegisterHandler(websocket.RoomKick, h.handleKick)
}

// handleRoomJoin вводит клиента в комнату по коду доступа
func (h *WSHandler) handleRoomJoin(data json.RawMessage, client *websocket.Client) error {
	var joinEvent struct {
		AccessCode string `json:"access_code"`
		// Необязательный идентификатор прошлой сессии: позволяет вернуться
		// в комнату после рестарта сервера, пока действует grace-окно
		ParticipantID string `json:"participant_id"`
	}
	if err := json.Unmarshal(data, &joinEvent); err != nil {
		log.Printf("[WSHandler] Ошибка парсинга room:join: %v", err)
		return fmt.Errorf("failed to parse room:join: %w", apperrors.ErrValidation)
	}
	if joinEvent.AccessCode == "" {
		return fmt.Errorf("access_code is required: %w", apperrors.ErrValidation)
	}

	actor, err := h.registry.Resolve(joinEvent.AccessCode)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res, err := actor.Join(ctx, roomengine.JoinRequest{
		UserID:              client.UserID,
		DisplayName:         client.DisplayName,
		ResumeParticipantID: joinEvent.ParticipantID,
	})
	if err != nil {
		return err
	}

	// Привязываем соединение к комнате: с этого момента клиент получает
	// события комнаты, а старое соединение той же идентичности вытесняется
	h.wsHub.BindClient(client, actor.RoomID(), res.ParticipantID)

	if err := h.wsManager.SendToClient(client, websocket.ServerJoined, gin.H{
		"room_id":        actor.RoomID(),
		"access_code":    actor.AccessCode(),
		"participant_id": res.ParticipantID,
		"role":           res.Role,
		"reconnected":    res.Reconnected,
	}); err != nil {
		log.Printf("[WSHandler] Не удалось отправить server:joined пользователю %d: %v", client.UserID, err)
	}

	// Снапшот отправляется адресно, минуя общий поток комнаты
	if err := h.wsManager.SendEvent(client, res.Snapshot); err != nil {
		log.Printf("[WSHandler] Не удалось отправить снапшот пользователю %d: %v", client.UserID, err)
	}
	return nil
}

// handleRoomLeave - явный выход участника из комнаты
func (h *WSHandler) handleRoomLeave(data json.RawMessage, client *websocket.Client) error {
	actor, pid, err := h.boundActor(client)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := actor.Leave(ctx, pid); err != nil {
		return err
	}
	client.UnbindRoom()
	return nil
}

// handleSubmitAnswer фиксирует ответ участника на текущий вопрос
func (h *WSHandler) handleSubmitAnswer(data json.RawMessage, client *websocket.Client) error {
	var answerEvent struct {
		QuestionID        uint   `json:"question_id"`
		SelectedOptionIDs []uint `json:"selected_option_ids"`
		TimeSpentMs       int64  `json:"time_spent_ms"`
	}
	if err := json.Unmarshal(data, &answerEvent); err != nil {
		log.Printf("[WSHandler] Ошибка парсинга room:submit_answer: %v", err)
		return fmt.Errorf("failed to parse room:submit_answer: %w", apperrors.ErrValidation)
	}

	actor, pid, err := h.boundActor(client)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	return actor.SubmitAnswer(ctx, roomengine.SubmitRequest{
		ParticipantID:     pid,
		QuestionID:        answerEvent.QuestionID,
		SelectedOptionIDs: answerEvent.SelectedOptionIDs,
		TimeSpentMs:       answerEvent.TimeSpentMs,
	})
}

// handleKick исключает участника из комнаты
func (h *WSHandler) handleKick(data json.RawMessage, client *websocket.Client) error {
	var kickEvent struct {
		ParticipantID string `json:"participant_id"`
	}
	if err := json.Unmarshal(data, &kickEvent); err != nil {
		log.Printf("[WSHandler] Ошибка парсинга room:kick: %v", err)
		return fmt.Errorf("failed to parse room:kick: %w", apperrors.ErrValidation)
	}
	if kickEvent.ParticipantID == "" {
		return fmt.Errorf("participant_id is required: %w", apperrors.ErrValidation)
	}

	actor, pid, err := h.boundActor(client)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	return actor.Kick(ctx, pid, kickEvent.ParticipantID)
}

// handleHeartbeat отвечает на пульс клиента
func (h *WSHandler) handleHeartbeat(data json.RawMessage, client *websocket.Client) error {
	ack := map[string]interface{}{
		"timestamp": time.Now().UnixMilli(),
	}
	if err := h.wsManager.SendToClient(client, websocket.ServerHeartbeatAck, ack); err != nil {
		log.Printf("[WSHandler] WARNING: Ошибка при отправке server:heartbeat_ack пользователю %d: %v", client.UserID, err)
	}
	return nil
}

// teacherCommand оборачивает команду управления комнатой общим конвейером:
// найти актор по привязке клиента и выполнить команду от его имени
func (h *WSHandler) teacherCommand(run func(ctx context.Context, a *roomengine.Actor, participantID string) error) func(json.RawMessage, *websocket.Client) error {
	return func(data json.RawMessage, client *websocket.Client) error {
		actor, pid, err := h.boundActor(client)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		return run(ctx, actor, pid)
	}
}

// boundActor возвращает актор комнаты, к которой привязан клиент
func (h *WSHandler) boundActor(client *websocket.Client) (*roomengine.Actor, string, error) {
	roomID := client.RoomID()
	pid := client.ParticipantID()
	if roomID == 0 || pid == "" {
		return nil, "", fmt.Errorf("join a room first: %w", apperrors.ErrValidation)
	}

	actor, ok := h.registry.Get(roomID)
	if !ok {
		// Комната могла завершиться и быть выгруженной
		return nil, "", apperrors.ErrRoomClosed
	}
	return actor, pid, nil
}

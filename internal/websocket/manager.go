package websocket

import (
	"encoding/json"
	"fmt"
	"log"

	apperrors "github.com/yourusername/classquiz-api/internal/pkg/errors"
)

// Envelope представляет структуру входящего WebSocket-сообщения
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Manager маршрутизирует входящие WebSocket-сообщения по зарегистрированным обработчикам
type Manager struct {
	hub            *RoomHub
	messageHandler map[string]func(data json.RawMessage, client *Client) error
}

// NewManager создает новый менеджер WebSocket
func NewManager(hub *RoomHub) *Manager {
	return &Manager{
		hub:            hub,
		messageHandler: make(map[string]func(data json.RawMessage, client *Client) error),
	}
}

// RegisterHandler регистрирует обработчик для определенного типа сообщений
func (m *Manager) RegisterHandler(messageType string, handler func(data json.RawMessage, client *Client) error) {
	m.messageHandler[messageType] = handler
	log.Printf("[WebSocketManager] Зарегистрирован обработчик для сообщений типа: %s", messageType)
}

// HandleMessage обрабатывает входящее сообщение от клиента.
// Возвращает error, если обработка не удалась и соединение нужно закрыть.
func (m *Manager) HandleMessage(message []byte, client *Client) error {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		log.Printf("[WebSocketManager] Не удалось разобрать сообщение от пользователя %d: %v", client.UserID, err)
		m.SendErrorToClient(client, "invalid_message_format", "Invalid JSON format")
		return err // Ошибка парсинга - закрываем соединение
	}

	m.hub.metrics.MessageReceived(env.Type)

	handler, ok := m.messageHandler[env.Type]
	if !ok {
		log.Printf("[WebSocketManager] Нет обработчика для типа '%s' от пользователя %d", env.Type, client.UserID)
		m.SendErrorToClient(client, "unknown_message_type", fmt.Sprintf("Unknown message type: %s", env.Type))
		return nil // Неизвестный тип - не закрываем соединение
	}

	if err := handler(env.Data, client); err != nil {
		// Доменные ошибки сообщаем клиенту и продолжаем работать,
		// все остальное фатально для соединения
		code := apperrors.Code(err)
		if code != "internal_error" {
			m.SendErrorToClient(client, code, err.Error())
			return nil
		}
		log.Printf("[WebSocketManager] Обработчик '%s' вернул ошибку для пользователя %d: %v", env.Type, client.UserID, err)
		return err
	}

	return nil
}

// SendErrorToClient отправляет стандартизированное сообщение об ошибке клиенту.
// Этот метод НЕ закрывает соединение.
func (m *Manager) SendErrorToClient(client *Client, code string, message string) {
	errorEvent := map[string]interface{}{
		"type": ServerError,
		"data": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	data, err := json.Marshal(errorEvent)
	if err != nil {
		log.Printf("[WebSocketManager] Ошибка сериализации server:error: %v", err)
		return
	}
	if !client.enqueue(data) {
		log.Printf("[WebSocketManager] Не удалось доставить server:error пользователю %d", client.UserID)
	}
}

// SendToClient отправляет произвольное событие конкретному клиенту
func (m *Manager) SendToClient(client *Client, messageType string, data interface{}) error {
	event := map[string]interface{}{
		"type": messageType,
		"data": data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", messageType, err)
	}
	if !client.enqueue(payload) {
		return fmt.Errorf("client %s send buffer is full", client.ConnectionID)
	}
	return nil
}

// SendEvent отправляет произвольную структуру клиенту как есть, без конверта.
// Используется для снапшотов: они уже имеют форму события комнаты.
func (m *Manager) SendEvent(client *Client, ev interface{}) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if !client.enqueue(payload) {
		return fmt.Errorf("client %s send buffer is full", client.ConnectionID)
	}
	return nil
}

// GetMetrics возвращает текущие метрики WebSocket-системы
func (m *Manager) GetMetrics() map[string]interface{} {
	return m.hub.GetMetrics()
}

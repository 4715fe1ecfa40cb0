package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/classquiz-api/internal/domain/entity"
	"github.com/yourusername/classquiz-api/internal/handler/dto"
	apperrors "github.com/yourusername/classquiz-api/internal/pkg/errors"
	"github.com/yourusername/classquiz-api/internal/service"
	"github.com/yourusername/classquiz-api/internal/service/roomengine"
)

// RoomHandler обрабатывает REST-запросы, связанные с комнатами
type RoomHandler struct {
	roomService *service.RoomService
	registry    *roomengine.Registry
}

// NewRoomHandler создает новый обработчик комнат
func NewRoomHandler(roomService *service.RoomService, registry *roomengine.Registry) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
		registry:    registry,
	}
}

// CreateRoomRequest представляет запрос на создание комнаты
type CreateRoomRequest struct {
	QuizID             uint   `json:"quiz_id" binding:"required"`
	MaxParticipants    int    `json:"max_participants" binding:"omitempty,min=1,max=500"`
	TimeMode           string `json:"time_mode" binding:"omitempty,oneof=per_question total_time"`
	TimePerQuestionSec int    `json:"time_per_question_sec" binding:"omitempty,min=5,max=600"`
	TotalTimeLimitSec  int    `json:"total_time_limit_sec" binding:"omitempty,min=30,max=14400"`
	ShuffleQuestions   bool   `json:"shuffle_questions"`
	AllowLateJoin      *bool  `json:"allow_late_join"`
	ShowAnswersWhen    string `json:"show_answers_when" binding:"omitempty,oneof=immediately after_quiz never"`
}

// CreateRoom обрабатывает запрос учителя на создание комнаты
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ownerID := c.MustGet("user_id").(uint)

	allowLateJoin := true
	if req.AllowLateJoin != nil {
		allowLateJoin = *req.AllowLateJoin
	}

	room, err := h.roomService.CreateRoom(ownerID, service.RoomSettings{
		QuizID:             req.QuizID,
		MaxParticipants:    req.MaxParticipants,
		TimeMode:           req.TimeMode,
		TimePerQuestionSec: req.TimePerQuestionSec,
		TotalTimeLimitSec:  req.TotalTimeLimitSec,
		ShuffleQuestions:   req.ShuffleQuestions,
		AllowLateJoin:      allowLateJoin,
		ShowAnswersWhen:    req.ShowAnswersWhen,
	})
	if err != nil {
		h.handleRoomError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewRoomResponse(room))
}

// GetRoomByCode возвращает публичную информацию о комнате для экрана входа
func (h *RoomHandler) GetRoomByCode(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "access code is required"})
		return
	}

	room, err := h.roomService.GetRoomByCode(code)
	if err != nil {
		h.handleRoomError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewLobbyResponse(room, h.roomService.RoomOccupancy(room.ID)))
}

// GetRoomResults возвращает сохраненные результаты завершенной комнаты
func (h *RoomHandler) GetRoomResults(c *gin.Context) {
	roomID := c.MustGet("roomID").(uint)

	room, participants, err := h.roomService.GetRoomResults(roomID)
	if err != nil {
		h.handleRoomError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewRoomResultsResponse(room, participants))
}

// ListMyRooms возвращает комнаты текущего учителя
func (h *RoomHandler) ListMyRooms(c *gin.Context) {
	ownerID := c.MustGet("user_id").(uint)

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	rooms, total, err := h.roomService.ListRoomsByOwner(ownerID, page, pageSize)
	if err != nil {
		h.handleRoomError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaginatedRoomsResponse(rooms, total, page, pageSize))
}

// DeleteRoom удаляет комнату владельца
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	roomID := c.MustGet("roomID").(uint)
	ownerID := c.MustGet("user_id").(uint)

	// Поднятую в память комнату дополнительно проверяем на активность
	if actor, ok := h.registry.Get(roomID); ok {
		status, _, _ := actor.ExtState()
		if status == entity.RoomStatusActive || status == entity.RoomStatusPaused {
			c.JSON(http.StatusConflict, gin.H{"error": "cannot delete a running room"})
			return
		}
	}

	if err := h.roomService.DeleteRoom(ownerID, roomID); err != nil {
		h.handleRoomError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Room deleted successfully"})
}

// handleRoomError преобразует доменные ошибки в HTTP-статусы
func (h *RoomHandler) handleRoomError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		log.Printf("ERROR: Internal server error in RoomHandler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/classquiz-api/pkg/auth"
)

// AuthHandler выдает WS-тикеты аутентифицированным пользователям.
// Управление аккаунтами живет на стороне платформы; сюда приходят
// уже выданные ею токены доступа.
type AuthHandler struct {
	jwtService *auth.JWTService
}

// NewAuthHandler создает новый обработчик аутентификации
func NewAuthHandler(jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{jwtService: jwtService}
}

// GenerateWsTicket выдает короткоживущий тикет для WebSocket-подключения.
// Эндпоинт защищен RequireAuth: идентичность берется из контекста.
func (h *AuthHandler) GenerateWsTicket(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
		return
	}

	displayName, _ := c.Get("display_name")
	role, _ := c.Get("role")
	displayNameStr, _ := displayName.(string)
	roleStr, _ := role.(string)

	ticket, err := h.jwtService.GenerateWSTicket(userID.(uint), displayNameStr, roleStr)
	if err != nil {
		log.Printf("[AuthHandler] Ошибка генерации WS-тикета: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate WebSocket ticket"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"ticket": ticket,
		},
	})
}

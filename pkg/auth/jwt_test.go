package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService("test-secret-key", 1, 60)
	require.NoError(t, err, "Сервис должен создаваться с корректным секретом")
	return svc
}

func TestNewJWTService_RequiresSecret(t *testing.T) {
	// Act
	svc, err := NewJWTService("", 1, 60)

	// Assert
	assert.Error(t, err, "Пустой секрет должен приводить к ошибке")
	assert.Nil(t, svc)
}

func TestJWTService_GenerateAndParseToken(t *testing.T) {
	// Arrange
	svc := newTestJWTService(t)

	// Act
	tokenString, err := svc.GenerateToken(42, "Мария Ивановна", "teacher")
	require.NoError(t, err)
	claims, err := svc.ParseToken(tokenString)

	// Assert
	require.NoError(t, err, "Свежий токен должен проходить проверку")
	assert.Equal(t, uint(42), claims.UserID, "UserID должен сохраниться в клеймах")
	assert.Equal(t, "Мария Ивановна", claims.DisplayName)
	assert.Equal(t, "teacher", claims.Role)
	assert.Empty(t, claims.Usage, "У токена доступа не должно быть назначения")
}

func TestJWTService_ParseToken_RejectsWrongSecret(t *testing.T) {
	// Arrange
	svc := newTestJWTService(t)
	other, err := NewJWTService("another-secret", 1, 60)
	require.NoError(t, err)

	tokenString, err := svc.GenerateToken(42, "Студент", "student")
	require.NoError(t, err)

	// Act
	_, err = other.ParseToken(tokenString)

	// Assert
	assert.Error(t, err, "Токен с чужой подписью должен отклоняться")
	assert.Contains(t, err.Error(), "signature")
}

func TestJWTService_ParseToken_RejectsMalformed(t *testing.T) {
	// Arrange
	svc := newTestJWTService(t)

	// Act
	_, err := svc.ParseToken("not-a-jwt")

	// Assert
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestJWTService_GenerateAndParseWSTicket(t *testing.T) {
	// Arrange
	svc := newTestJWTService(t)

	// Act
	ticket, err := svc.GenerateWSTicket(7, "Петя", "student")
	require.NoError(t, err)
	claims, err := svc.ParseWSTicket(ticket)

	// Assert
	require.NoError(t, err, "Свежий тикет должен проходить проверку")
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "Петя", claims.DisplayName)
	assert.Equal(t, "student", claims.Role)
	assert.Equal(t, wsTicketUsage, claims.Usage)
}

func TestJWTService_WSTicketIsNotAccessToken(t *testing.T) {
	// Arrange
	svc := newTestJWTService(t)

	ticket, err := svc.GenerateWSTicket(7, "Петя", "student")
	require.NoError(t, err)

	// Act
	_, err = svc.ParseToken(ticket)

	// Assert
	assert.Error(t, err, "WS-тикет не должен приниматься как токен доступа")
}

func TestJWTService_AccessTokenIsNotWSTicket(t *testing.T) {
	// Arrange
	svc := newTestJWTService(t)

	tokenString, err := svc.GenerateToken(7, "Петя", "student")
	require.NoError(t, err)

	// Act
	_, err = svc.ParseWSTicket(tokenString)

	// Assert
	assert.Error(t, err, "Токен доступа не должен приниматься как WS-тикет")
}

func TestJWTService_ExpiredTicketRejected(t *testing.T) {
	// Arrange: тикет с отрицательным временем жизни невозможен через конструктор,
	// поэтому создаем сервис напрямую
	svc := &JWTService{
		secret:         []byte("test-secret-key"),
		expirationHrs:  1,
		wsTicketExpiry: -time.Minute,
	}

	ticket, err := svc.GenerateWSTicket(7, "Петя", "student")
	require.NoError(t, err)

	// Act
	_, err = svc.ParseWSTicket(ticket)

	// Assert
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expired", "Просроченный тикет должен отклоняться")
}

package auth

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const wsTicketUsage = "websocket_auth"

// JWTCustomClaims содержит пользовательские поля для токена
type JWTCustomClaims struct {
	UserID      uint   `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	jwt.RegisteredClaims
	// Назначение токена: пустое для токена доступа, websocket_auth для WS-тикета
	Usage string `json:"usage,omitempty"`
}

// JWTService предоставляет методы для работы с JWT
type JWTService struct {
	secret         []byte
	expirationHrs  int
	wsTicketExpiry time.Duration
}

// NewJWTService создает новый сервис JWT
func NewJWTService(secret string, expirationHrs int, wsTicketExpirySec int) (*JWTService, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is required")
	}
	if expirationHrs <= 0 {
		expirationHrs = 24
	}
	wsExpiry := time.Duration(wsTicketExpirySec) * time.Second
	if wsExpiry <= 0 {
		wsExpiry = 60 * time.Second
	}

	return &JWTService{
		secret:         []byte(secret),
		expirationHrs:  expirationHrs,
		wsTicketExpiry: wsExpiry,
	}, nil
}

// GenerateToken создает токен доступа для пользователя
func (s *JWTService) GenerateToken(userID uint, displayName, role string) (string, error) {
	claims := &JWTCustomClaims{
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * time.Duration(s.expirationHrs))),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "classquiz-api",
			Subject:   fmt.Sprintf("%d", userID),
			Audience:  jwt.ClaimStrings{"classquiz-user"},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		log.Printf("[JWT] Ошибка генерации токена для пользователя ID=%d: %v", userID, err)
		return "", err
	}
	return tokenString, nil
}

// ParseToken проверяет и расшифровывает токен доступа
func (s *JWTService) ParseToken(tokenString string) (*JWTCustomClaims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Usage == wsTicketUsage {
		// WS-тикет не годится как токен доступа
		return nil, errors.New("ws ticket cannot be used as access token")
	}
	return claims, nil
}

// GenerateWSTicket создает короткоживущий JWT для аутентификации WebSocket.
// Токен доступа передается в заголовке, но браузерный WebSocket API заголовков
// не поддерживает, поэтому подключение авторизуется одноразовым тикетом в query.
func (s *JWTService) GenerateWSTicket(userID uint, displayName, role string) (string, error) {
	claims := &JWTCustomClaims{
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
		Usage:       wsTicketUsage,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.wsTicketExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "classquiz-api",
			Subject:   fmt.Sprintf("%d", userID),
			Audience:  jwt.ClaimStrings{"classquiz-ws"},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		log.Printf("[JWT] Ошибка генерации WS-тикета для пользователя ID=%d: %v", userID, err)
		return "", err
	}
	return tokenString, nil
}

// ParseWSTicket проверяет JWT, используемый как WS тикет
func (s *JWTService) ParseWSTicket(ticketString string) (*JWTCustomClaims, error) {
	claims, err := s.parse(ticketString)
	if err != nil {
		return nil, err
	}
	if claims.Usage != wsTicketUsage {
		return nil, errors.New("invalid ticket usage")
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string) (*JWTCustomClaims, error) {
	claims := &JWTCustomClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) {
			switch {
			case ve.Errors&jwt.ValidationErrorMalformed != 0:
				return nil, errors.New("token is malformed")
			case ve.Errors&jwt.ValidationErrorExpired != 0:
				return nil, errors.New("token is expired")
			case ve.Errors&jwt.ValidationErrorNotValidYet != 0:
				return nil, errors.New("token not valid yet")
			case ve.Errors&jwt.ValidationErrorSignatureInvalid != 0:
				return nil, errors.New("signature is invalid")
			}
		}
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

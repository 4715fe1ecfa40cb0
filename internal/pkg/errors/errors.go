package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены
	// (неизвестный access code, комната уже удалена после cooldown).
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized используется для ошибок аутентификации (неверный токен/тикет).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden используется, когда у участника недостаточно прав
	// (например, студент отправил команду учителя).
	ErrForbidden = errors.New("forbidden")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrUpstreamUnavailable используется при недоступности хранилища
	// (не удалось загрузить вопросы на старте комнаты).
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Конфликты состояния комнаты: команда корректна по форме,
// но неприменима к текущему состоянию. Возвращаются только
// отправителю команды, без рассылки по комнате.
var (
	// ErrRoomFull - достигнут лимит maxParticipants.
	ErrRoomFull = errors.New("room is full")

	// ErrLateJoinDisallowed - комната уже запущена, а поздний вход запрещен настройками.
	ErrLateJoinDisallowed = errors.New("late join is disallowed")

	// ErrNotActiveQuestion - ответ прислан не на текущий активный вопрос.
	ErrNotActiveQuestion = errors.New("question is not active")

	// ErrDuplicateSubmission - участник уже отвечал на этот вопрос.
	ErrDuplicateSubmission = errors.New("duplicate submission")

	// ErrRoomClosed - комната в терминальном статусе ended.
	ErrRoomClosed = errors.New("room is closed")

	// ErrConflict - прочие конфликты состояния (недопустимый переход статуса,
	// повторный kick и т.д.).
	ErrConflict = errors.New("resource state conflict")
)

// IsStateConflict сообщает, является ли ошибка конфликтом состояния комнаты.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrRoomFull) ||
		errors.Is(err, ErrLateJoinDisallowed) ||
		errors.Is(err, ErrNotActiveQuestion) ||
		errors.Is(err, ErrDuplicateSubmission) ||
		errors.Is(err, ErrRoomClosed) ||
		errors.Is(err, ErrConflict)
}

// Code возвращает стабильный wire-код для отправки клиенту в server:error.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrLateJoinDisallowed):
		return "late_join_disallowed"
	case errors.Is(err, ErrNotActiveQuestion):
		return "not_active_question"
	case errors.Is(err, ErrDuplicateSubmission):
		return "duplicate_submission"
	case errors.Is(err, ErrRoomClosed):
		return "room_closed"
	case errors.Is(err, ErrConflict):
		return "state_conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "internal_error"
	}
}

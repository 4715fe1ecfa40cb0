package websocket

// Типы входящих сообщений от клиентов
const (
	// RoomJoin - вход в комнату по коду доступа
	RoomJoin = "room:join"

	// RoomLeave - явный выход из комнаты
	RoomLeave = "room:leave"

	// RoomStart - запуск викторины (только учитель)
	RoomStart = "room:start"

	// RoomPause - пауза (только учитель)
	RoomPause = "room:pause"

	// RoomResume - возобновление (только учитель)
	RoomResume = "room:resume"

	// RoomNext - ручной переход к следующему вопросу (только учитель)
	RoomNext = "room:next"

	// RoomKick - исключение участника (только учитель)
	RoomKick = "room:kick"

	// RoomEnd - досрочное завершение (только учитель)
	RoomEnd = "room:end"

	// RoomSubmitAnswer - ответ на текущий вопрос
	RoomSubmitAnswer = "room:submit_answer"

	// RoomHeartbeat - пульс клиента, продлевает активность соединения
	RoomHeartbeat = "room:heartbeat"
)

// Типы служебных исходящих сообщений
const (
	// ServerError - стандартизированное сообщение об ошибке
	ServerError = "server:error"

	// ServerJoined - подтверждение входа с идентичностью участника
	ServerJoined = "server:joined"

	// ServerHeartbeatAck - подтверждение пульса
	ServerHeartbeatAck = "server:heartbeat_ack"
)

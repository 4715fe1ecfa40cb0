package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yourusername/classquiz-api/internal/config"
	"github.com/yourusername/classquiz-api/internal/handler"
	"github.com/yourusername/classquiz-api/internal/middleware"
	pgRepo "github.com/yourusername/classquiz-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/classquiz-api/internal/repository/redis"
	"github.com/yourusername/classquiz-api/internal/service"
	"github.com/yourusername/classquiz-api/internal/service/roomengine"
	ws "github.com/yourusername/classquiz-api/internal/websocket"
	"github.com/yourusername/classquiz-api/pkg/auth"
	"github.com/yourusername/classquiz-api/pkg/database"
)

// registryDisconnects транслирует обрывы websocket-соединений
// в уведомления движку соответствующей комнаты.
type registryDisconnects struct {
	registry *roomengine.Registry
}

func (n *registryDisconnects) NotifyDisconnect(roomID uint, participantID string) {
	if actor, ok := n.registry.Get(roomID); ok {
		actor.NotifyDisconnect(participantID)
	}
}

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis с использованием унифицированной конфигурации
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	quizRepo := pgRepo.NewQuizRepo(db)
	questionRepo := pgRepo.NewQuestionRepo(db)
	roomRepo := pgRepo.NewRoomRepo(db)
	resultRepo := pgRepo.NewResultRepo(db)

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	presenceRepo, err := redisRepo.NewPresenceRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize PresenceRepo: %v", err)
		os.Exit(1)
	}

	// Инициализируем JWTService
	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpirationHrs, cfg.JWT.WSTicketExpirySec)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	// Инициализация WebSocket Hub
	wsHub := ws.NewRoomHub()
	go wsHub.Run()

	// PubSub для зеркалирования событий между инстансами.
	// При выключенной кластеризации события остаются локальными.
	var pubSubProvider ws.PubSubProvider = &ws.NoOpPubSub{}
	if cfg.WebSocket.Cluster.Enabled {
		log.Println("Инициализация Redis PubSub для кластеризации WebSocket...")
		redisProvider, errProv := ws.NewRedisPubSub(redisClient)
		if errProv != nil {
			log.Printf("Ошибка при создании Redis PubSub провайдера: %v. Кластеризация WS будет неактивна.", errProv)
		} else {
			log.Println("Redis PubSub провайдер успешно инициализирован")
			pubSubProvider = redisProvider
		}
	}

	eventMirror := ws.NewEventMirror(wsHub, pubSubProvider, cfg.WebSocket.Cluster.EventsChannel)
	if err := eventMirror.Start(); err != nil {
		log.Printf("Failed to start event mirror: %v", err)
		os.Exit(1)
	}
	wsHub.SetMirror(eventMirror)

	// Конфигурация движка комнат: умолчания с переопределениями из файла
	engineCfg := roomengine.DefaultConfig()
	if cfg.Room.ReconnectGraceSec > 0 {
		engineCfg.ReconnectGrace = time.Duration(cfg.Room.ReconnectGraceSec) * time.Second
	}
	if cfg.Room.EndedCooldownMin > 0 {
		engineCfg.EndedCooldown = time.Duration(cfg.Room.EndedCooldownMin) * time.Minute
	}
	if cfg.Room.IdleWaitingTimeoutMin > 0 {
		engineCfg.IdleWaitingTimeout = time.Duration(cfg.Room.IdleWaitingTimeoutMin) * time.Minute
	}

	// Реестр актеров комнат
	registry := roomengine.NewRegistry(&roomengine.Dependencies{
		RoomRepo:     roomRepo,
		QuizRepo:     quizRepo,
		QuestionRepo: questionRepo,
		ResultRepo:   resultRepo,
		Presence:     presenceRepo,
		Broadcaster:  wsHub,
		Config:       engineCfg,
	})
	wsHub.SetDisconnectNotifier(&registryDisconnects{registry: registry})

	wsManager := ws.NewManager(wsHub)

	// Инициализируем сервисы
	roomService := service.NewRoomService(roomRepo, quizRepo, resultRepo, cacheRepo, presenceRepo)

	// Инициализируем обработчики
	authHandler := handler.NewAuthHandler(jwtService)
	roomHandler := handler.NewRoomHandler(roomService, registry)
	wsHandler := handler.NewWSHandler(wsHub, wsManager, registry, jwtService)

	// Инициализируем middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	rateLimiter := middleware.NewRateLimiter(cacheRepo)

	// Инициализируем роутер Gin
	router := gin.Default()

	isProduction := gin.Mode() == gin.ReleaseMode

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	// В production (GIN_MODE=release): не доверяем прокси (защита от IP spoofing)
	// В development: доверяем localhost
	// При деплое на VM с load balancer: добавьте IP балансировщика в список
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Настраиваем маршруты API
	api := router.Group("/api")
	{
		// Тикет для подключения по WebSocket
		api.POST("/ws-ticket",
			rateLimiter.Limit(middleware.TicketRateLimitConfig()),
			authMiddleware.RequireAuth(),
			authHandler.GenerateWsTicket,
		)

		// Комнаты
		rooms := api.Group("/rooms")
		{
			// Публичный поиск комнаты по коду доступа (для экрана входа)
			rooms.GET("/code/:code",
				rateLimiter.Limit(middleware.CodeLookupRateLimitConfig()),
				roomHandler.GetRoomByCode,
			)

			// Маршруты учителя
			teacherRooms := rooms.Group("")
			teacherRooms.Use(authMiddleware.RequireAuth(), authMiddleware.TeacherOnly())
			{
				teacherRooms.POST("", roomHandler.CreateRoom)
				teacherRooms.GET("", roomHandler.ListMyRooms)
			}

			// Группа маршрутов, требующих roomID
			roomWithID := rooms.Group("/:id")
			roomWithID.Use(middleware.ExtractUintParam("id", "roomID"))
			{
				roomWithID.GET("/results", roomHandler.GetRoomResults)

				authedRoom := roomWithID.Group("")
				authedRoom.Use(authMiddleware.RequireAuth(), authMiddleware.TeacherOnly())
				{
					authedRoom.DELETE("", roomHandler.DeleteRoom)
				}
			}
		}
	}

	// WebSocket маршруты
	router.GET("/ws", wsHandler.HandleConnection)
	router.GET("/ws/metrics", gin.WrapF(ws.WebSocketMetricsHandler(wsHub)))
	router.GET("/ws/health", gin.WrapF(ws.WebSocketHealthCheckHandler(wsHub)))

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Server.Port)

	// Ждем сигнал остановки
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Создаем контекст с таймаутом для graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Останавливаем комнаты: актеры дописывают результаты перед выходом
	registry.Shutdown()

	// Останавливаем websocket-подсистему
	eventMirror.Stop()
	wsHub.Shutdown()
	if err := pubSubProvider.Close(); err != nil {
		log.Printf("Error closing PubSub provider: %v", err)
	}

	log.Println("Server exited properly")
}

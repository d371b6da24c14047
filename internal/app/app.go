package app

import (
	"cardofun_backend/internal/config"
	"cardofun_backend/internal/controller"
	"cardofun_backend/internal/repository"
	"cardofun_backend/internal/service"
	"cardofun_backend/internal/util"
	"cardofun_backend/pkg/configwatcher"
	"cardofun_backend/pkg/database"
	"cardofun_backend/pkg/logger"
	"cardofun_backend/pkg/monitoring"
	"cardofun_backend/pkg/security"
	"cardofun_backend/pkg/tracing"
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config     *config.Config
	ConfigPath string
	Router     *gin.Engine
	DB         *gorm.DB
	Redis      *redis.Client
	Hub        *service.ChatHub

	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user       *repository.UserRepository
	friendship *repository.FriendshipRepository
	message    *repository.MessageRepository
}

type services struct {
	chatHub    *service.ChatHub
	storage    *service.StorageService
	friendship *service.FriendshipService
	message    *service.MessageService
}

type controllers struct {
	health  *controller.HealthController
	user    *controller.UserController
	message *controller.MessageController
	ws      *controller.WSController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		friendship: repository.NewFriendshipRepository(db, rdb),
		message:    repository.NewMessageRepository(db),
	}
}

func initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}
	s.chatHub = service.NewChatHub(rdb, repos.friendship, cfg.Delivery.QueueSize)
	s.storage = service.NewStorageService(cfg)
	s.friendship = service.NewFriendshipService(repos.friendship, repos.user, s.chatHub, cfg)
	s.message = service.NewMessageService(repos.message, repos.user, s.chatHub, s.storage, cfg)
	return s
}

func initControllers(s *services, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		health:  controller.NewHealthController(db, rdb),
		user:    controller.NewUserController(s.friendship, cfg),
		message: controller.NewMessageController(s.message, cfg),
		ws:      controller.NewWSController(s.chatHub),
	}
}

func setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// Assemble wires repositories, services and routes over already opened stores.
func Assemble(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *App {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := initRepositories(db, rdb)
	svcs := initServices(repos, cfg, rdb)
	app.Hub = svcs.chatHub
	ctrls := initControllers(svcs, cfg, db, rdb)

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode == "debug" {
		router.Use(gin.Logger())
	}
	setupMiddlewares(router, cfg)
	registerRoutes(router, ctrls, repos, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.Router = router
	app.RegisterConfigCallback(logger.SetLevel)
	return app
}

func NewApp(cfg *config.Config, configPath string) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	monitoring.Init()

	var tp *sdktrace.TracerProvider
	if cfg.Tracing.Enabled {
		tp, err = tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app := Assemble(cfg, db, rdb)
	app.ConfigPath = configPath
	app.tracer = tp
	return app
}

// Run serves until SIGINT or SIGTERM, then drains sessions and shuts down.
func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.Hub.Run(ctx)

	if a.Config.Server.WatchConfig && a.ConfigPath != "" {
		go func() {
			if err := configwatcher.WatchConfig(ctx, a.ConfigPath, a.applyConfig); err != nil {
				logger.Log.Error("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down server...")

	a.Hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	logger.Log.Info("Server exiting")
}

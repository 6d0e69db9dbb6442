package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	devicegate "device-gate"
	"device-gate/internal/cache"
	"device-gate/internal/handler"
	"device-gate/internal/repository"
	"device-gate/internal/service"
	"device-gate/pkg/config"
	"device-gate/pkg/database"
	"device-gate/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yml", "path to the config file")
	flag.Parse()

	var cfg config.Config
	if err := cfg.Init(*configPath); err != nil {
		log.Fatalf("can't load config: %s", err.Error())
	}
	logCloser := logger.Init(cfg.Log)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := database.NewManager(ctx, cfg.DB, log.Infof)
	if err != nil {
		log.Fatalf("can't connect to %s: %s", cfg.DB.Driver, err.Error())
	}
	if err := database.MigrateDB(db.DB(), cfg.DB); err != nil {
		log.Fatalf("can't migrate database: %s", err.Error())
	}
	go db.MonitorAndReconnect(ctx)

	var membershipCache service.MembershipCache
	if cfg.Redis.Addr != "" {
		rdb, err := cache.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, membership cache disabled")
		} else {
			defer rdb.Close()
			membershipCache = cache.NewMembership(rdb, cfg.Membership.CacheTTL)
		}
	}

	tg, err := service.NewTelegramService(cfg.Telegram, cfg.Membership.LookupTimeout)
	if err != nil {
		log.Fatalf("can't start telegram client: %s", err.Error())
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, tg, membershipCache, cfg.Membership)
	handlers := handler.NewHandlers(services, db, handler.Options{
		Pprof:          cfg.ServerConfig.Pprof,
		TrustedProxies: cfg.ServerConfig.TrustedProxies,
		CORSAllowAll:   cfg.CORS.AllowAll,
		BotToken:       cfg.Telegram.Token,
		InitData:       cfg.Telegram.InitData,
	})

	if err := services.OriginService.Refresh(ctx); err != nil {
		log.WithError(err).Warn("initial origin allow-list load failed")
	}
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.CORS.RefreshSchedule, func() {
		if err := services.OriginService.Refresh(ctx); err != nil {
			log.WithError(err).Warn("origin allow-list refresh failed")
		}
	}); err != nil {
		log.Fatalf("invalid cors.refresh_schedule %q: %s", cfg.CORS.RefreshSchedule, err.Error())
	}
	scheduler.Start()

	go services.TelegramService.Start(ctx)

	gin.SetMode(cfg.ServerConfig.GinMode)
	srv := new(devicegate.Server)
	go func() {
		if err := srv.Run(cfg.ServerConfig, handlers.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error occurred while running http server, %s", err.Error())
		}
	}()

	<-ctx.Done()
	log.Print("device-gate shutting down")

	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("error occurred on server shutting down: %s", err.Error())
	}
	if err := db.Close(); err != nil {
		log.Errorf("error occurred on db connection close: %s", err.Error())
	}
}

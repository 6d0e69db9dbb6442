package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"device-gate/internal/service"
	"device-gate/pkg/config"
)

const adminHeader = "X-Admin-Id"

// Pinger is the database health probe behind /init-db.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Pprof          bool
	TrustedProxies []string
	CORSAllowAll   bool
	BotToken       string
	InitData       config.InitDataConfig
}

type Handlers struct {
	services *service.Services
	db       Pinger
	opts     Options
}

func NewHandlers(services *service.Services, db Pinger, opts Options) *Handlers {
	return &Handlers{services: services, db: db, opts: opts}
}

func (h *Handlers) InitRoutes() *gin.Engine {
	router := gin.New()
	if err := router.SetTrustedProxies(h.opts.TrustedProxies); err != nil {
		log.WithError(err).Warn("invalid trusted proxies, client ip falls back to the peer address")
	}
	router.Use(requestID(), requestLogger(), gin.Recovery())
	router.Use(cors.New(h.corsConfig()))
	if h.opts.Pprof {
		pprof.Register(router)
	}

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "device-gate is running")
	})
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/init-db", h.initDB)

	router.POST("/secure-login", h.secureLogin)
	router.POST("/verify-channels", h.verifyChannels)

	admin := router.Group("/admin")
	{
		admin.GET("/users", h.listUsers)
		admin.PUT("/users/:id", h.updateUser)
		admin.DELETE("/users/:id", h.deleteUser)

		admin.GET("/channels", h.listChannels)
		admin.POST("/channels", h.addChannel)
		admin.POST("/channels/resolve", h.resolveChannel)
		admin.DELETE("/channels/:id", h.deleteChannel)

		admin.GET("/origins", h.listOrigins)
		admin.POST("/origins", h.addOrigin)
		admin.DELETE("/origins/:id", h.deleteOrigin)
	}

	return router
}

func (h *Handlers) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", adminHeader, requestIDHeader, initDataHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if h.opts.CORSAllowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOriginFunc = h.services.OriginService.IsAllowed
	}
	return cfg
}

func (h *Handlers) initDB(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		log.WithError(err).Error("database probe failed")
		c.String(http.StatusInternalServerError, "Error connecting to database: %s", err.Error())
		return
	}
	c.String(http.StatusOK, "Database connection successful.")
}

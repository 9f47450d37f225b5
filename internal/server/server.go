package server

import (
	"context"
	"net/http"
	"time"

	assemblydomain "github.com/finanze/finanze/internal/assembly/domain"
	"github.com/finanze/finanze/internal/config"
	credentialdomain "github.com/finanze/finanze/internal/credential/domain"
	"github.com/finanze/finanze/internal/entity"
	exchangedomain "github.com/finanze/finanze/internal/exchange/domain"
	fetchdomain "github.com/finanze/finanze/internal/fetch/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	fetchSvc    fetchdomain.Service
	assemblySvc assemblydomain.Service
	exchange    exchangedomain.Provider
	registry    *entity.Registry
	credentials credentialdomain.Repository
	scrape      *config.ScrapeConfigHolder
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	FetchSvc    fetchdomain.Service
	AssemblySvc assemblydomain.Service
	Exchange    exchangedomain.Provider
	Registry    *entity.Registry
	Credentials credentialdomain.Repository
	Scrape      *config.ScrapeConfigHolder
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		fetchSvc:    p.FetchSvc,
		assemblySvc: p.AssemblySvc,
		exchange:    p.Exchange,
		registry:    p.Registry,
		credentials: p.Credentials,
		scrape:      p.Scrape,
	}

	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.POST("/fetch", s.RunFetch)
	s.engine.GET("/position", s.GetPosition)
	s.engine.GET("/exchange-rates", s.GetExchangeRates)

	s.engine.GET("/entities/available", s.ListAvailableEntities)
	s.engine.POST("/entity/:id/credentials", s.ConnectEntity)
	s.engine.DELETE("/entity/:id/session", s.DisconnectEntity)
}

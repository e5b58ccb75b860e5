package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/cashback/internal/config"
	invoicedomain "github.com/smallbiznis/cashback/internal/invoice/domain"
	obslogger "github.com/smallbiznis/cashback/internal/observability/logger"
	obstracing "github.com/smallbiznis/cashback/internal/observability/tracing"
	"github.com/smallbiznis/cashback/internal/scheduler"
	subscriptiondomain "github.com/smallbiznis/cashback/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

// JobRunner triggers scheduler jobs on demand.
type JobRunner interface {
	RunJob(ctx context.Context, name string, at time.Time) (scheduler.JobResult, error)
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	DB              *gorm.DB `optional:"true"`
	Scheduler       *scheduler.Scheduler
	InvoiceSvc      invoicedomain.Service
	SubscriptionSvc subscriptiondomain.Service
}

type Server struct {
	engine          *gin.Engine
	db              *gorm.DB
	jobs            JobRunner
	invoiceSvc      invoicedomain.Service
	subscriptionSvc subscriptiondomain.Service
}

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obstracing.GinMiddleware())
	r.Use(obslogger.GinMiddleware(log.Named("http")))
	r.Use(ErrorHandlingMiddleware())
	return r
}

func NewServer(p ServerParams) *Server {
	s := newServer(p.Gin, p.DB, p.Scheduler, p.InvoiceSvc, p.SubscriptionSvc)
	s.registerRoutes()
	return s
}

func newServer(engine *gin.Engine, db *gorm.DB, jobs JobRunner, invoiceSvc invoicedomain.Service, subscriptionSvc subscriptiondomain.Service) *Server {
	return &Server{
		engine:          engine,
		db:              db,
		jobs:            jobs,
		invoiceSvc:      invoiceSvc,
		subscriptionSvc: subscriptionSvc,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.Health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	v1.POST("/jobs/:job/run", s.RunJob)

	v1.GET("/invoices/:id", s.GetInvoiceByID)
	v1.POST("/invoices/:id/pay", s.MarkInvoicePaid)
	v1.POST("/invoices/:id/fail", s.MarkInvoiceFailed)
	v1.POST("/invoices/:id/void", s.VoidInvoice)

	v1.GET("/subscriptions/:id", s.GetSubscriptionByID)
	v1.GET("/subscriptions/:id/invoices", s.ListSubscriptionInvoices)
	v1.GET("/subscriptions/:id/transitions", s.ListSubscriptionTransitions)
}

func (s *Server) Health(c *gin.Context) {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http.server.failed", zap.Error(err))
				}
			}()
			log.Info("http.server.started", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

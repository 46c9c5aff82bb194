package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/hera/internal/authorization"
	"github.com/smallbiznis/hera/internal/config"
	"github.com/smallbiznis/hera/internal/entity"
	entitydomain "github.com/smallbiznis/hera/internal/entity/domain"
	"github.com/smallbiznis/hera/internal/observability"
	obslogger "github.com/smallbiznis/hera/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/hera/internal/observability/metrics"
	obstracing "github.com/smallbiznis/hera/internal/observability/tracing"
	"github.com/smallbiznis/hera/internal/organization"
	organizationdomain "github.com/smallbiznis/hera/internal/organization/domain"
	"github.com/smallbiznis/hera/internal/posting"
	postingdomain "github.com/smallbiznis/hera/internal/posting/domain"
	"github.com/smallbiznis/hera/internal/relationship"
	relationshipdomain "github.com/smallbiznis/hera/internal/relationship/domain"
	"github.com/smallbiznis/hera/internal/transaction"
	transactiondomain "github.com/smallbiznis/hera/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	organization.Module,
	relationship.Module,
	entity.Module,
	transaction.Module,
	posting.Module,
	authorization.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.Middleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
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
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	organizationSvc organizationdomain.Service
	entitySvc       entitydomain.Service
	relationshipSvc relationshipdomain.Service
	transactionSvc  transactiondomain.Service
	postingSvc      postingdomain.Service
	authzSvc        authorization.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	OrganizationSvc organizationdomain.Service
	EntitySvc       entitydomain.Service
	RelationshipSvc relationshipdomain.Service
	TransactionSvc  transactiondomain.Service
	PostingSvc      postingdomain.Service
	AuthzSvc        authorization.Service `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		organizationSvc: p.OrganizationSvc,
		entitySvc:       p.EntitySvc,
		relationshipSvc: p.RelationshipSvc,
		transactionSvc:  p.TransactionSvc,
		postingSvc:      p.PostingSvc,
	}
	if p.Cfg.AuthzEnabled {
		svc.authzSvc = p.AuthzSvc
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v2")

	api.POST("/smart-codes/validate", s.ValidateSmartCode)
	api.POST("/organizations", s.Organizations)
	api.POST("/entities", s.Entities)
	api.POST("/transactions", s.Transactions)
	api.POST("/relationships", s.Relationships)
	api.POST("/postings", s.Postings)
	api.POST("/postings/daily", s.PostDaily)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/nutriplan/nutriplan/internal/app"
	iauth "github.com/nutriplan/nutriplan/internal/auth"
	"github.com/nutriplan/nutriplan/internal/handlers"
	"github.com/nutriplan/nutriplan/internal/middleware"
	"github.com/nutriplan/nutriplan/internal/services"
	"github.com/nutriplan/nutriplan/pkg/mail"
)

// NewRouter builds the Gin engine, wires middleware and registers the NutriPlan routes. A nil
// mailer disables invitation emails; a nil rate store disables throttling.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, mailer mail.Mailer, rateStore middleware.RateStore) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	svc, err := newServiceSet(db, cfg, mailer)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins...))

	registerHealthRoutes(r, db, cfg)
	registerMetricsRoutes(r, cfg)

	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	profileHandler := handlers.NewProfileHandler(svc.profiles)
	registerProfileRoutes(api, profileHandler)

	coach := api.Group("/coach")
	registerCoachProfileRoutes(coach, profileHandler)

	coachOnly := coach.Group("")
	coachOnly.Use(middleware.RequireCoach(svc.access))
	registerInvitationRoutes(coachOnly, handlers.NewInvitationHandler(svc.invitations))
	registerRequestRoutes(coachOnly, handlers.NewRequestHandler(svc.requests))
	clientHandler := handlers.NewClientHandler(svc.relationships, svc.access)
	registerClientRoutes(coachOnly, clientHandler, svc.access)
	coachOnly.GET("/activity", handlers.NewAuditHandler(svc.audit).List)

	api.GET("/access/:clientId", clientHandler.CheckAccess)
	api.GET("/me/coaches", clientHandler.MyCoaches)

	approvals := api.Group("/approvals")
	if cfg.Server.RateLimit.Enabled {
		approvals.Use(middleware.RateLimit(rateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))
	}
	registerApprovalRoutes(approvals, handlers.NewApprovalHandler(svc.approvals))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

type serviceSet struct {
	audit         *services.AuditService
	access        *services.AccessService
	profiles      *services.ProfileService
	invitations   *services.InvitationService
	approvals     *services.ApprovalService
	requests      *services.RequestService
	relationships *services.RelationshipService
}

func newServiceSet(db *gorm.DB, cfg *app.Config, mailer mail.Mailer) (*serviceSet, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	access, err := services.NewAccessService(db)
	if err != nil {
		return nil, err
	}
	profiles, err := services.NewProfileService(db, audit)
	if err != nil {
		return nil, err
	}
	invitations, err := services.NewInvitationService(db, mailer, cfg.InvitationOptions(audit)...)
	if err != nil {
		return nil, err
	}
	approvals, err := services.NewApprovalService(db, services.WithApprovalAudit(audit))
	if err != nil {
		return nil, err
	}
	requests, err := services.NewRequestService(db)
	if err != nil {
		return nil, err
	}
	relationships, err := services.NewRelationshipService(db, services.WithRelationshipAudit(audit))
	if err != nil {
		return nil, err
	}

	return &serviceSet{
		audit:         audit,
		access:        access,
		profiles:      profiles,
		invitations:   invitations,
		approvals:     approvals,
		requests:      requests,
		relationships: relationships,
	}, nil
}

func registerHealthRoutes(r *gin.Engine, db *gorm.DB, cfg *app.Config) {
	if !cfg.Monitoring.Health.Enabled {
		return
	}
	r.GET("/health", handlers.Health(db))
	r.GET("/api/health", handlers.Health(db))
}

func registerMetricsRoutes(r *gin.Engine, cfg *app.Config) {
	if !cfg.Monitoring.Prometheus.Enabled {
		return
	}
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	r.GET(endpoint, gin.WrapH(promhttp.Handler()))
}

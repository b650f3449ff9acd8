package api

import (
	"github.com/gin-gonic/gin"

	"grid-core/internal/engine"
	"grid-core/pkg/db"
)

// Server exposes the control and status surface over HTTP. Reads are open;
// anything that halts, resumes, or closes goes through JWT auth.
type Server struct {
	Router    *gin.Engine
	Engines   *engine.Service
	DB        *db.Database
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime configuration exposed on the status endpoint.
type SystemMeta struct {
	DryRun      bool     `json:"dry_run"`
	Venue       string   `json:"venue"`
	Symbols     []string `json:"symbols"`
	UseMockFeed bool     `json:"use_mock_feed"`
	Version     string   `json:"version"`
}

func NewServer(engines *engine.Service, database *db.Database, meta SystemMeta, jwtSecret string) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		Router:    r,
		Engines:   engines,
		DB:        database,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/portfolio/:symbol", s.getPortfolio)
		api.GET("/grid/:symbol", s.getGrid)
		api.GET("/trades/:symbol", s.getTrades)
		api.GET("/signals/:symbol", s.getSignals)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/risk/:symbol/halt", s.haltSymbol)
			protected.POST("/risk/:symbol/resume", s.resumeSymbol)
			protected.POST("/trades/:symbol/:id/close", s.closeTrade)
		}
	}
}

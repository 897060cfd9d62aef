package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jlescarlan11/project-krawl-sub003/internal/config"
	"github.com/jlescarlan11/project-krawl-sub003/internal/krawl"
	"github.com/jlescarlan11/project-krawl-sub003/internal/stream"
	"github.com/jlescarlan11/project-krawl-sub003/internal/trail"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
	Krawl  *Service
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, trailStore trail.Store, routeProvider krawl.RouteProvider) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient)
	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: hub,
		Krawl:  NewService(cfg, trailStore, hub, routeProvider),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	RegisterRoutes(s.App.Group("/krawl"), s.Krawl)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

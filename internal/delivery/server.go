package delivery

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"livechat-console/internal/config"
	"livechat-console/internal/logger"
)

// Routes registers a role's REST surface under /api.
type Routes interface {
	Register(api fiber.Router)
}

type Server struct {
	config *config.Config
	hub    *Hub
	app    *fiber.App
	log    *logrus.Entry
}

func NewServer(cfg *config.Config, hub *Hub, routes Routes) *Server {
	s := &Server{
		config: cfg,
		hub:    hub,
		log:    logger.Get("server"),
	}
	s.app = s.setup(routes)
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) setup(routes Routes) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "LiveChat Console Gateway",
		DisableStartupMessage: s.config.IsProduction(),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
		Output: logger.Get("http").Writer(),
	}))

	corsConfig := cors.Config{
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With,Access-Control-Request-Method,Access-Control-Request-Headers",
		ExposeHeaders:    "Content-Length,Access-Control-Allow-Origin,Access-Control-Allow-Headers,Content-Type",
		AllowCredentials: s.config.AllowCredentials,
		MaxAge:           86400, // 24 hours
	}

	// Set origins based on environment
	if s.config.IsProduction() {
		corsConfig.AllowOrigins = s.config.GetCORSOrigins()
		s.log.Infof("CORS configured for production with origins: %s", corsConfig.AllowOrigins)
	} else {
		corsConfig.AllowOrigins = "*"
		corsConfig.AllowCredentials = false // Never allow credentials with wildcard origin
		s.log.Info("CORS configured for development with wildcard origin")
	}

	app.Use(cors.New(corsConfig))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"message":     "LiveChat console gateway is running",
			"role":        s.config.Role,
			"port":        s.config.Port,
			"environment": s.config.Environment,
			"viewers":     s.hub.Count(),
		})
	})

	if routes != nil {
		routes.Register(app.Group("/api"))
	}

	// WebSocket middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/console", websocket.New(s.hub.HandleConnection))

	return app
}

func (s *Server) Start() error {
	s.log.Infof("Console gateway (%s) starting on port %s", s.config.Role, s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

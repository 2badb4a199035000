package main

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/studymate/voice-session/config"
	"github.com/studymate/voice-session/session"
	"github.com/studymate/voice-session/study"
	"github.com/studymate/voice-session/tts"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	studyClient, err := study.NewClient(cfg.StudyServiceURL, logger)
	if err != nil {
		logger.Fatal("study client", zap.Error(err))
	}

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Fatal("speech synthesis engine", zap.Error(err))
	}

	app := fiber.New()

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "voice": cfg.VoiceEnabled()})
	})

	// Document listing is proxied so the page talks to a single origin. An
	// empty catalog is a valid response, not an error.
	app.Get("/pdfs", func(c *fiber.Ctx) error {
		pdfs, err := studyClient.ListPDFs(c.Context())
		if err != nil {
			logger.Warn("pdf listing failed", zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "study service unavailable"})
		}
		return c.JSON(fiber.Map{"pdfs": pdfs})
	})

	app.Use("/session", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/session", websocket.New(func(ws *websocket.Conn) {
		defer ws.Close()

		if !cfg.VoiceEnabled() {
			// No recognition capability configured: the page still works
			// for reading, but voice conversation is off.
			_ = ws.WriteJSON(fiber.Map{
				"event":   "status",
				"kind":    "error",
				"message": "Voice conversation is not available on this server.",
			})
			return
		}

		sess, err := session.New(ws, cfg, studyClient, engine, logger)
		if err != nil {
			logger.Error("session setup failed", zap.Error(err))
			return
		}
		sess.Run()
	}))

	logger.Info("listening", zap.String("addr", cfg.ListenAddr))
	if err := app.Listen(cfg.ListenAddr); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func buildEngine(cfg *config.Config, logger *zap.Logger) (tts.Engine, error) {
	switch cfg.TTSEngine {
	case config.EngineElevenLabs:
		return tts.NewElevenLabs(cfg.ElevenLabsAPIKey, logger)
	case config.EngineOpenAI:
		return tts.NewOpenAISpeech(cfg.OpenAIAPIKey, logger)
	default:
		return tts.Silent{}, nil
	}
}

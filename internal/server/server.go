package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator"
	"github.com/golang-migrate/migrate/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/drivetrace/backend/internal/config"
	"github.com/drivetrace/backend/internal/queue"
	mid "github.com/drivetrace/backend/internal/server/middleware"
	"github.com/drivetrace/backend/internal/storage"
	"github.com/drivetrace/backend/internal/util"
	"github.com/drivetrace/backend/pkg/ai"
	oai "github.com/drivetrace/backend/pkg/ai/ollama"
	gai "github.com/drivetrace/backend/pkg/ai/openai"
	"github.com/drivetrace/backend/pkg/logger"
	"github.com/drivetrace/backend/pkg/query"
	pgxstore "github.com/drivetrace/backend/pkg/store/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// Init wires the API server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully. Migrations run before the first connection is handed
// to a handler.
func Init(cfg *config.Config) {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runMigrations(cfg)

	conn, err := pgxstore.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()
	st := pgxstore.New(conn, cfg.EmbedDimension)

	que := queue.Init(cfg.RabbitURL)
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, queue.WorkQueues); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	s3Client := storage.NewS3Client(ctx)

	engine := query.New(st, st, newEmbeddingClient(cfg))

	app := &mid.App{
		DBConn: conn,
		Store:  st,
		Engine: engine,
		Queue:  ch,
		S3:     s3Client,
		Config: cfg,
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("100M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

func runMigrations(cfg *config.Config) {
	m, err := migrate.New("file://"+cfg.MigrationsDir, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to load migrations", "err", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("Failed to run migrations", "err", err)
	}
}

// newEmbeddingClient picks the provider adapter. The server only embeds
// query text; extraction models stay on the worker.
func newEmbeddingClient(cfg *config.Config) ai.EmbeddingClient {
	switch cfg.AIAdapter {
	case "ollama":
		client, err := oai.NewClient(oai.NewClientParams{
			EmbeddingModel: cfg.EmbedModel,
			Dimension:      cfg.EmbedDimension,
			BaseURL:        cfg.EmbedURL,
			ApiKey:         cfg.EmbedKey,
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewClient(gai.NewClientParams{
			EmbeddingModel: cfg.EmbedModel,
			Dimension:      cfg.EmbedDimension,
			EmbeddingURL:   cfg.EmbedURL,
			EmbeddingKey:   cfg.EmbedKey,
		})
	}
}

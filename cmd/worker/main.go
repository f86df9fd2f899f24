package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/drivetrace/backend/internal/config"
	"github.com/drivetrace/backend/internal/queue"
	"github.com/drivetrace/backend/internal/storage"
	"github.com/drivetrace/backend/internal/util"
	"github.com/drivetrace/backend/pkg/ai"
	oai "github.com/drivetrace/backend/pkg/ai/ollama"
	gai "github.com/drivetrace/backend/pkg/ai/openai"
	"github.com/drivetrace/backend/pkg/chunker"
	"github.com/drivetrace/backend/pkg/extract"
	"github.com/drivetrace/backend/pkg/logger"
	"github.com/drivetrace/backend/pkg/logger/console"
	"github.com/drivetrace/backend/pkg/pipeline"
	pgxstore "github.com/drivetrace/backend/pkg/store/pgx"
)

// providerClient is the union the pipeline needs from one adapter.
type providerClient interface {
	ai.EmbeddingClient
	ai.ExtractionClient
}

func newProviderClient(cfg *config.Config) providerClient {
	switch cfg.AIAdapter {
	case "ollama":
		client, err := oai.NewClient(oai.NewClientParams{
			EmbeddingModel:  cfg.EmbedModel,
			ExtractionModel: cfg.ExtractModel,
			Dimension:       cfg.EmbedDimension,

			BaseURL: cfg.EmbedURL,
			ApiKey:  cfg.EmbedKey,

			MaxConcurrentRequests: int64(cfg.EmbedConcurrency),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewClient(gai.NewClientParams{
			EmbeddingModel:  cfg.EmbedModel,
			ExtractionModel: cfg.ExtractModel,
			Dimension:       cfg.EmbedDimension,

			EmbeddingURL: cfg.EmbedURL,
			EmbeddingKey: cfg.EmbedKey,
			ChatURL:      cfg.ExtractURL,
			ChatKey:      cfg.ExtractKey,

			MaxConcurrentRequests: int64(cfg.EmbedConcurrency),
		})
	}
}

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{})
		logger.Init(consoleLogger)
		logger.Fatal("Invalid configuration", "err", err)
	}

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
	})
	logger.Init(consoleLogger)

	// Init s3 client
	s3Client := storage.NewS3Client(ctx)
	loader := storage.NewS3Loader(s3Client, cfg.S3Bucket)

	// Provider adapter for embeddings and extraction
	aiClient := newProviderClient(cfg)

	// Init pgx client
	pgConn, err := pgxstore.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()
	st := pgxstore.New(pgConn, cfg.EmbedDimension)

	splitter, err := chunker.New(
		cfg.TokenEncoder,
		cfg.ChunkMinTokens,
		cfg.ChunkMaxTokens,
		cfg.ChunkOverlapTokens,
	)
	if err != nil {
		logger.Fatal("Could not create chunker", "err", err)
	}

	var modelExtractor *extract.ModelExtractor
	if cfg.ExtractEnabled && cfg.ExtractModel != "" {
		modelExtractor = extract.NewModelExtractor(aiClient)
	}
	extractor := extract.New(modelExtractor, cfg.ConfidenceThreshold)

	pipe := pipeline.New(st, st, aiClient, extractor, splitter, pipeline.Options{
		ParallelDocuments: cfg.ParallelDocuments,
		EmbedConcurrency:  cfg.EmbedConcurrency,
		EmbedBatchSize:    cfg.EmbedBatchSize,
		Backoff: util.BackoffPolicy{
			MaxAttempts: cfg.ProviderMaxRetries,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
	})

	// Init rabbitmq
	conn := queue.Init(cfg.RabbitURL)
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.WorkQueues); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	logger.Info("Listening for messages")

	// A single consumer channel with prefetch=1 so only one message is in
	// flight at a time across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.WorkQueues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.IngestQueue:
					processingErr = queue.ProcessIngestMessage(ctx, loader, pipe, qm.msg.Body)
				case queue.DeleteQueue:
					processingErr = queue.ProcessDeleteMessage(ctx, pipe, qm.msg.Body)
				}

				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					queue.HandleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					if err := qm.msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/commitcollect/internal/config"
	"example.com/commitcollect/internal/connection"
	"example.com/commitcollect/internal/consumer"
	"example.com/commitcollect/internal/ingest"
	"example.com/commitcollect/internal/storage"
	"example.com/commitcollect/internal/strava"
	httptransport "example.com/commitcollect/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("failed to load aws config: %v", err)
	}
	store := storage.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.MainTable)

	ingestLogger := log.New(log.Writer(), "[ingest] ", log.LstdFlags)
	registry := connection.NewRegistry(store)
	provider := strava.NewClient(cfg.StravaClientID, cfg.StravaClientSecret,
		strava.WithBaseURLs(cfg.StravaAPIBaseURL, cfg.StravaOAuthBaseURL))
	gate := ingest.NewGate(store, cfg.IdempotencyTTL, ingestLogger)
	pipeline := ingest.NewPipeline(store, gate, registry, provider, cfg.TokenRefreshMargin, ingestLogger)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.ConsumerGroup,
		Topic:    cfg.WebhookTopic,
		MinBytes: 1,
		MaxBytes: 10 << 20,
	})
	defer reader.Close()

	processor := consumer.NewProcessor(reader, ingest.NewKafkaHandler(pipeline))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("processor stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.HTTPAddress}, mux)

	go func() {
		log.Printf("commitcollect-worker listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownCh
	cancel()

	if err := httptransport.ShutdownGracefully(server); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	<-done
}

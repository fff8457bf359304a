package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/commitcollect/internal/account"
	"example.com/commitcollect/internal/api"
	"example.com/commitcollect/internal/audit"
	"example.com/commitcollect/internal/auth"
	"example.com/commitcollect/internal/config"
	"example.com/commitcollect/internal/connection"
	"example.com/commitcollect/internal/milestone"
	"example.com/commitcollect/internal/session"
	"example.com/commitcollect/internal/storage"
	"example.com/commitcollect/internal/strava"
	httptransport "example.com/commitcollect/internal/transport/http"
	"example.com/commitcollect/internal/webhook"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("failed to load aws config: %v", err)
	}
	client := dynamodb.NewFromConfig(awsCfg)

	mainStore := storage.NewDynamoStore(client, cfg.MainTable)
	sessionStore := storage.NewDynamoStore(client, cfg.SessionsTable)
	auditStore := storage.NewDynamoStore(client, cfg.AuditTable)

	writer := webhook.NewKafkaWriter(cfg.KafkaBrokers, cfg.WebhookTopic)
	publisher := webhook.NewPublisher(writer)
	defer publisher.Close()

	provider := strava.NewClient(cfg.StravaClientID, cfg.StravaClientSecret,
		strava.WithBaseURLs(cfg.StravaAPIBaseURL, cfg.StravaOAuthBaseURL))

	apiLogger := log.New(log.Writer(), "[api] ", log.LstdFlags)
	handler := api.NewHandler(api.Config{
		FrontendBaseURL:    cfg.FrontendBaseURL,
		CookieDomain:       cfg.CookieDomain,
		CookieSecure:       cfg.CookieSecure,
		SessionTTL:         cfg.SessionTTL,
		LoginAuthorizeURL:  cfg.CognitoAuthorizeEndpoint,
		LoginClientID:      cfg.CognitoClientID,
		LoginRedirectURI:   cfg.CognitoRedirectURI,
		StravaClientID:     cfg.StravaClientID,
		StravaRedirectURI:  cfg.StravaRedirectURI,
		StravaOAuthBaseURL: cfg.StravaOAuthBaseURL,
		WebhookVerifyToken: cfg.StravaWebhookVerifyToken,
	}, api.Deps{
		Sessions:   session.NewManager(sessionStore, cfg.SessionTTL),
		Identity:   auth.NewIdentityClient(cfg.CognitoTokenEndpoint, cfg.CognitoClientID, cfg.CognitoRedirectURI),
		State:      auth.NewStateSigner(cfg.OAuthStateKey),
		Registry:   connection.NewRegistry(mainStore),
		Profiles:   account.NewProfiles(mainStore),
		Milestones: milestone.NewService(mainStore),
		Engine:     milestone.NewEngine(mainStore, cfg.RecomputePageSize, cfg.RecomputeMaxInspect, apiLogger),
		Deleter:    account.NewDeleter(mainStore, cfg.DeleteBatchSize, cfg.DeleteMaxRetries, cfg.DeleteBackoff, apiLogger),
		Provider:   provider,
		Publisher:  publisher,
		Audit:      audit.NewSink(auditStore),
		Logger:     apiLogger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	server := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.HTTPAddress}, logger(mux))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("commitcollect-api listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	if err := httptransport.ShutdownGracefully(server); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

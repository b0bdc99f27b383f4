package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"salesforce-bulk/internal/sftest"
)

// Sobe a org falsa para testar a CLI sem uma org de verdade:
//
//	go run ./cmd/fake-salesforce &
//	SF_LOGIN_URL=http://localhost:8081 SF_AUTH_METHOD=client_credentials \
//	SF_CLIENT_ID=3MVG9fake.client SF_CLIENT_SECRET=fake-client-secret sfbulk check
func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	publicURL := "http://localhost" + addr
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		publicURL = v
	}

	fake := sftest.New()
	fake.URL = publicURL
	fake.PollsToComplete = 2
	fake.Seed("Account",
		sftest.Record{"Name": "Acme Corp", "Industry": "Energy"},
		sftest.Record{"Name": "Globex", "Industry": "Technology"},
		sftest.Record{"Name": "Initech", "Industry": "Technology"},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(logger, fake.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("fake salesforce listening",
		zap.String("addr", addr),
		zap.String("instance_url", publicURL),
		zap.String("username", sftest.Username),
		zap.String("client_id", sftest.ClientID))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func logRequests(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

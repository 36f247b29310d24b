package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/k-code-yt/go-storefront/internal/config"
	"github.com/k-code-yt/go-storefront/internal/jobs"
	"github.com/k-code-yt/go-storefront/internal/metrics"
	"github.com/k-code-yt/go-storefront/internal/payment/application"
	"github.com/k-code-yt/go-storefront/internal/payment/handlers"
	payrepo "github.com/k-code-yt/go-storefront/internal/payment/infra/repo"
	"github.com/k-code-yt/go-storefront/internal/payment/infra/stripe"
	"github.com/k-code-yt/go-storefront/pkg/db/postgres"
	pkgkafka "github.com/k-code-yt/go-storefront/pkg/kafka"
	"github.com/sirupsen/logrus"
)

func init() {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		log.Fatal("Unable to get current file path")
	}

	envPath := filepath.Join(filepath.Dir(filename), ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("No .env file found at %s", envPath)
	}
}

func main() {
	cfg := config.NewAppConfig()
	if err := config.ConfigureLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		logrus.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbOpts := postgres.NewPostgresConfig("storefront")
	db, err := postgres.NewDBConn(dbOpts)
	if err != nil {
		logrus.Fatalf("unable to conn to db, err = %v", err)
	}
	defer db.Close()

	jobsDB, err := config.OpenJobsDB(db, dbOpts)
	if err != nil {
		logrus.Fatalf("unable to conn to jobs db, err = %v", err)
	}
	defer jobsDB.Close()

	kafkaCfg := pkgkafka.NewKafkaConfig()
	if err := pkgkafka.EnsureTopics(ctx, kafkaCfg, kafkaCfg.JobsTopic, kafkaCfg.DeadLetterTopic); err != nil {
		logrus.Fatalf("unable to ensure topics, err = %v", err)
	}
	producer, err := pkgkafka.NewKafkaProducer(kafkaCfg)
	if err != nil {
		logrus.Fatal(err)
	}
	defer producer.Close()

	encoder, err := pkgkafka.NewMsgEncoder(kafkaCfg.EncoderType, jobs.JobSchema)
	if err != nil {
		logrus.Fatal(err)
	}

	queue := jobs.NewQueue(jobs.NewLedgerRepo(jobsDB), producer, encoder, kafkaCfg.JobsTopic, cfg.RetryPolicy())
	ingest := application.NewIngestService(
		stripe.NewSignatureVerifier(cfg.WebhookSecret, cfg.SignatureTolerance),
		payrepo.NewPaymentEventRepo(db),
		queue,
	)

	reg := metrics.NewRegistry()
	mux := http.NewServeMux()
	handlers.NewWebhookHandler(ingest, cfg.MaxBodyBytes).Register(mux)
	mux.Handle("GET /metrics", metrics.Handler(reg))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.WithField("addr", srv.Addr).Info("HTTP:LISTENING")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	<-ctx.Done()
	logrus.Info("HTTP:SHUTTING_DOWN")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP:SHUTDOWN_FAILED")
	}
}

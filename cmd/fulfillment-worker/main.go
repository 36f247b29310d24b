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
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/k-code-yt/go-storefront/internal/config"
	fapp "github.com/k-code-yt/go-storefront/internal/fulfillment/application"
	fhandlers "github.com/k-code-yt/go-storefront/internal/fulfillment/handlers"
	frepo "github.com/k-code-yt/go-storefront/internal/fulfillment/infra/repo"
	"github.com/k-code-yt/go-storefront/internal/jobs"
	"github.com/k-code-yt/go-storefront/internal/metrics"
	payapp "github.com/k-code-yt/go-storefront/internal/payment/application"
	payhandlers "github.com/k-code-yt/go-storefront/internal/payment/handlers"
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

	ledger := jobs.NewLedgerRepo(jobsDB)
	queue := jobs.NewQueue(ledger, producer, encoder, kafkaCfg.JobsTopic, cfg.RetryPolicy())
	sink := jobs.MultiSink{
		jobs.NewDeadLetterRepo(jobsDB),
		jobs.NewTopicDeadLetterSink(producer, kafkaCfg.DeadLetterTopic),
	}

	svc := fapp.NewFulfillmentService(frepo.NewPostgresStore(db), stripe.DecodeProcessorEvent)
	runner := jobs.NewRunner(fhandlers.NewJobHandler(svc).Handle, ledger, sink, cfg.RunnerConfig())
	reconciler := payapp.NewReconciler(payrepo.NewPaymentEventRepo(db), queue, payapp.ReconcilerConfig{
		Interval: cfg.ReconcileInterval,
		Grace:    cfg.ReconcileGrace,
		Batch:    cfg.ReconcileBatch,
	})

	consumer, err := pkgkafka.NewKafkaConsumer(kafkaCfg, []string{kafkaCfg.JobsTopic}, jobs.NewJobDecoder(encoder), cfg.JobsConcurrency)
	if err != nil {
		logrus.Fatal(err)
	}

	srv := metricsServer(cfg.MetricsPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("METRICS:SERVER_FAILED")
		}
	}()

	wg := &sync.WaitGroup{}
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx); err != nil {
			logrus.WithError(err).Error("CONSUMER:STOPPED")
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		runner.Run(ctx, consumer.MsgCH, consumer)
	}()
	go func() {
		defer wg.Done()
		reconciler.Run(ctx)
	}()

	logrus.WithFields(logrus.Fields{
		"topic":       kafkaCfg.JobsTopic,
		"group":       kafkaCfg.ConsumerGroup,
		"concurrency": cfg.JobsConcurrency,
	}).Info("WORKER:STARTED")

	<-ctx.Done()
	logrus.Info("WORKER:SHUTTING_DOWN")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func metricsServer(port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler(metrics.NewRegistry()))
	mux.HandleFunc("GET /health", payhandlers.HandleHealth)
	return &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

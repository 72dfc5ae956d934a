package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/garage/core"
	"github.com/relabs-tech/garage/core/backend"
	"github.com/relabs-tech/garage/core/csql"
	"github.com/relabs-tech/garage/core/events"
	"github.com/relabs-tech/garage/core/logger"
	"github.com/relabs-tech/garage/core/metrics"
	"github.com/relabs-tech/garage/core/store"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTGRES_PASSWORD="docker"
type Service struct {
	Postgres         string        `env:"POSTGRES,required" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string        `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
	Schema           string        `env:"POSTGRES_SCHEMA,optional,default=public" description:"the database schema of all tables"`
	Port             int           `env:"PORT,optional,default=3000" description:"the http port"`
	BasePath         string        `env:"BASE_PATH,optional,default=/api" description:"path prefix of all routes"`
	LogLevel         string        `env:"LOG_LEVEL,optional,default=info" description:"The level used for logger, can be debug, warning, info, error"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT,optional,default=10s" description:"upper bound for the database work of a request"`
	AggregationMode  string        `env:"AGGREGATION_MODE,optional,default=json" description:"query strategy for users with relations, json or portable"`
	KafkaBrokers     string        `env:"KAFKA_BROKERS,optional" description:"comma separated kafka brokers, notifications are only logged if empty"`
	KafkaTopic       string        `env:"KAFKA_TOPIC,optional,default=resource_notification" description:"the topic of change notifications"`
	Metrics          bool          `env:"METRICS,optional,default=true" description:"expose prometheus metrics on /metrics"`
}

// settings are the parsed values of a Service
type settings struct {
	logLevel logrus.Level
	mode     store.AggregationMode
	brokers  []string
}

func (s *Service) settings() (settings, error) {
	var st settings
	var err error
	st.logLevel, err = logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return st, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	st.mode, err = store.ParseAggregationMode(s.AggregationMode)
	if err != nil {
		return st, fmt.Errorf("AGGREGATION_MODE: %w", err)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return st, fmt.Errorf("PORT: invalid port %d", s.Port)
	}
	if s.RequestTimeout <= 0 {
		return st, fmt.Errorf("REQUEST_TIMEOUT: must be positive, got %s", s.RequestTimeout)
	}
	for _, b := range strings.Split(s.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			st.brokers = append(st.brokers, b)
		}
	}
	return st, nil
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}
	st, err := service.settings()
	if err != nil {
		panic(err)
	}
	logger.InitLogger(st.logLevel)
	rlog := logger.Default()

	db := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, service.Schema)
	defer db.Close()
	if err := db.Migrate(context.Background()); err != nil {
		rlog.WithError(err).Fatalln("cannot migrate database")
	}

	var notifier core.Notifier = events.LogNotifier{}
	if len(st.brokers) > 0 {
		kafkaNotifier := events.NewKafkaNotifier(st.brokers, service.KafkaTopic)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	var m *metrics.Metrics
	if service.Metrics {
		m = metrics.New()
	}

	router := mux.NewRouter()
	logger.AddRequestID(router)
	backend.New(&backend.Builder{
		DB:              db,
		Router:          router,
		BasePath:        service.BasePath,
		Notifier:        notifier,
		Metrics:         m,
		AggregationMode: st.mode,
		RequestTimeout:  service.RequestTimeout,
	})

	accessLog := rlog.WriterLevel(logrus.InfoLevel)
	defer accessLog.Close()
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", service.Port),
		Handler:           handlers.CombinedLoggingHandler(accessLog, router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		rlog.Infoln("listen on port", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rlog.WithError(err).Errorln("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	rlog.Infoln("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		rlog.WithError(err).Errorln("shutdown")
	}
}

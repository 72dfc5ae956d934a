package main

import (
	"testing"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/relabs-tech/garage/core/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceDefaults(t *testing.T) {
	t.Setenv("POSTGRES", "host=localhost port=5432 user=postgres dbname=postgres sslmode=disable")

	service := &Service{}
	require.NoError(t, envdecode.Decode(service))
	assert.Equal(t, "public", service.Schema)
	assert.Equal(t, "/api", service.BasePath)
	assert.Equal(t, 3000, service.Port)
	assert.Equal(t, 10*time.Second, service.RequestTimeout)
	assert.Equal(t, "resource_notification", service.KafkaTopic)
	assert.True(t, service.Metrics)

	st, err := service.settings()
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, st.logLevel)
	assert.Equal(t, store.AggregationJSON, st.mode)
	assert.Empty(t, st.brokers)
}

func TestServiceFromEnvironment(t *testing.T) {
	t.Setenv("POSTGRES", "postgres://postgres@localhost:5432/postgres")
	t.Setenv("PORT", "8080")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("AGGREGATION_MODE", "portable")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	service := &Service{}
	require.NoError(t, envdecode.Decode(service))
	st, err := service.settings()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, st.logLevel)
	assert.Equal(t, store.AggregationPortable, st.mode)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, st.brokers)
	assert.Equal(t, 2*time.Second, service.RequestTimeout)
}

func TestServiceMissingPostgres(t *testing.T) {
	t.Setenv("POSTGRES", "")

	err := envdecode.Decode(&Service{})
	assert.Error(t, err)
}

func TestServiceInvalidSettings(t *testing.T) {
	valid := Service{LogLevel: "info", AggregationMode: "json", Port: 3000, RequestTimeout: time.Second}

	tests := map[string]func(s *Service){
		"log level":        func(s *Service) { s.LogLevel = "loud" },
		"aggregation mode": func(s *Service) { s.AggregationMode = "magic" },
		"port":             func(s *Service) { s.Port = 70000 },
		"request timeout":  func(s *Service) { s.RequestTimeout = 0 },
	}
	for name, modify := range tests {
		t.Run(name, func(t *testing.T) {
			s := valid
			modify(&s)
			_, err := s.settings()
			assert.Error(t, err)
		})
	}
}

// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"embed"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/relabs-tech/garage/core"
	"github.com/relabs-tech/garage/core/csql"
	"github.com/relabs-tech/garage/core/logger"
	"github.com/relabs-tech/garage/core/metrics"
	"github.com/relabs-tech/garage/core/schema"
	"github.com/relabs-tech/garage/core/store"
)

//go:embed schemas
var schemaFS embed.FS

// DefaultRequestTimeout bounds every request unless configured otherwise
const DefaultRequestTimeout = 10 * time.Second

// Backend is the REST backend of the garage service
type Backend struct {
	db             *csql.DB
	router         *mux.Router
	notifier       core.Notifier
	metrics        *metrics.Metrics
	validator      *schema.Validator
	mode           store.AggregationMode
	requestTimeout time.Duration
}

// Builder is a builder helper for the Backend
type Builder struct {
	// DB is a postgres database. This is mandatory.
	DB *csql.DB
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// BasePath is the path prefix of all routes, e.g. "/api". This is optional.
	BasePath string
	// Notifier receives a notification after every committed change. This is optional.
	Notifier core.Notifier
	// Metrics adds request metrics and the /metrics route. This is optional.
	Metrics *metrics.Metrics
	// AggregationMode selects the query strategy for users with relations. Defaults to json.
	AggregationMode store.AggregationMode
	// RequestTimeout bounds the database work of a single request. Defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// New realizes the actual backend and adds the routes to the router
func New(bb *Builder) *Backend {
	if bb.DB == nil {
		panic("DB is missing")
	}

	if bb.Router == nil {
		panic("Router is missing")
	}

	validator, err := schema.NewValidatorFromFS(schemaFS, "schemas")
	if err != nil {
		panic(err)
	}

	b := &Backend{
		db:             bb.DB,
		router:         bb.Router,
		notifier:       bb.Notifier,
		metrics:        bb.Metrics,
		validator:      validator,
		mode:           bb.AggregationMode,
		requestTimeout: bb.RequestTimeout,
	}
	if b.mode == "" {
		b.mode = store.AggregationJSON
	}
	if b.requestTimeout <= 0 {
		b.requestTimeout = DefaultRequestTimeout
	}

	router := b.router
	if basePath := strings.TrimSuffix(bb.BasePath, "/"); basePath != "" {
		router = b.router.PathPrefix(basePath).Subrouter()
	}

	b.useMiddlewares()

	// relations first, /users/{id} would swallow /users/relations otherwise
	b.handleRelations(router)
	b.handleUsers(router)
	b.handleCars(router)
	b.handleOperations(router)
	return b
}

// Router returns the router of the backend
func (b *Backend) Router() *mux.Router {
	return b.router
}

func (b *Backend) store(q csql.Querier) *store.Store {
	return store.New(q, store.WithAggregationMode(b.mode))
}

// notify hands a committed change to the notifier. Failures are logged, the
// change itself has already been committed.
func (b *Backend) notify(ctx context.Context, resource string, operation core.Operation, resourceID uuid.UUID, payload interface{}) {
	if b.notifier == nil {
		return
	}
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Errorf("Error 4401: cannot marshal notification payload")
			return
		}
	}
	err := b.notifier.Notify(ctx, resource, operation, resourceID, data)
	if b.metrics != nil {
		b.metrics.Notification(resource, string(operation), err)
	}
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 4402: cannot notify %s %s %s", operation, resource, resourceID)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	jsonData, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(jsonData)
}

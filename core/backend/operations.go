package backend

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/relabs-tech/garage/core/logger"
)

// Version is the version of the current build, set with -ldflags at build time
var Version = "unset"

// handleOperations adds the routes for operating the service: version,
// table statistics and, if configured, prometheus metrics
func (b *Backend) handleOperations(router *mux.Router) {
	rlog := logger.Default()
	rlog.Debugln("operations")
	rlog.Debugln("  handle route: /version GET")
	rlog.Debugln("  handle route: /statistics GET")

	router.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	}).Methods(http.MethodOptions, http.MethodGet)

	router.HandleFunc("/statistics", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.statistics(w, r)
	}).Methods(http.MethodOptions, http.MethodGet)

	if b.metrics != nil {
		rlog.Debugln("  handle route: /metrics GET")
		router.Handle("/metrics", b.metrics.Handler()).Methods(http.MethodOptions, http.MethodGet)
	}
}

// statistics answers with the row counts of all tables. The response carries an
// Etag, a matching If-None-Match is answered with 304.
func (b *Backend) statistics(w http.ResponseWriter, r *http.Request) {
	st, err := b.store(b.db).Statistics(r.Context())
	if err != nil {
		writeError(w, r, "statistics", 4501, err)
		return
	}

	body, _ := json.Marshal(st)
	sum := sha256.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`
	w.Header().Set("Etag", etag)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(body)
}

// etagMatches reports whether the If-None-Match header value matches etag
func etagMatches(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	switch ifNoneMatch {
	case "":
		return false
	case "*":
		return true
	}
	want := strings.Trim(etag, `"`)
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if strings.Trim(candidate, `"`) == want {
			return true
		}
	}
	return false
}

package backend

import (
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/relabs-tech/garage/core/store"
)

const (
	defaultPage = 0
	defaultSize = 10

	// maximum accepted request body
	maxBodySize = 1 << 20
)

// pageFromRequest reads the page and size query parameters
func pageFromRequest(r *http.Request) (store.Page, error) {
	page := store.Page{Number: defaultPage, Size: defaultSize}
	query := r.URL.Query()
	if s := query.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return page, badRequest("parameter 'page': must be a non-negative integer")
		}
		page.Number = n
	}
	if s := query.Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return page, badRequest("parameter 'size': must be a positive integer")
		}
		page.Size = n
	}
	if page.Number > math.MaxInt/page.Size {
		return page, badRequest("parameters 'page' and 'size': offset out of range")
	}
	return page, nil
}

// decodeBody validates the request body against schemaID and unmarshals it into v
func (b *Backend) decodeBody(w http.ResponseWriter, r *http.Request, schemaID string, v interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return badRequest("cannot read body: %s", err)
	}
	if err := b.validator.ValidateBytes(body, schemaID); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return badRequest("invalid body: %s", err)
	}
	return nil
}

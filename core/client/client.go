// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast in-process access to a REST api

Instead of marshalling HTTP, the client talks directly to the mux router. The client
is perfectly suited for unit tests. The same client can talk to a running
service over the network, see NewWithURL.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	basePath   string
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests to the backend,
// through the mux router
//
// WithContext() specifies a different base context all together.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to the backend
func NewWithURL(url string) Client {
	return Client{
		url:            strings.TrimSuffix(url, "/"),
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := make(map[string]string, len(c.defaultHeaders)+1)
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	headers[key] = value
	c.defaultHeaders = headers
	return c
}

// WithBasePath returns a new client which prefixes all paths with basePath
func (c Client) WithBasePath(basePath string) Client {
	c.basePath = strings.TrimSuffix(basePath, "/")
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the request context of the client
func (c Client) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// PagePath adds paging parameters to path
func PagePath(path string, page, size int) string {
	return WithQuery(path, map[string]string{
		"page": strconv.Itoa(page),
		"size": strconv.Itoa(size),
	})
}

// WithQuery adds query parameters to path
func WithQuery(path string, parameters map[string]string) string {
	values := url.Values{}
	for k, v := range parameters {
		values.Set(k, v)
	}
	if len(values) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + values.Encode()
}

// StatusError is returned when the handler answered with an unexpected status code.
// Body holds the raw response body.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: handler returned wrong status code %d. Error: %s",
		e.Method, e.Path, e.Status, strings.TrimSpace(string(e.Body)))
}

// do sends the request either through the router or over the network. It returns
// the response status, header and body.
func (c Client) do(method, path string, header map[string]string, body interface{}) (int, http.Header, []byte, error) {
	var reader io.Reader
	if body != nil {
		j, ok := body.([]byte)
		if !ok {
			var err error
			j, err = json.Marshal(body)
			if err != nil {
				return http.StatusBadRequest, nil, nil, fmt.Errorf("%s to %s: %w", method, path, err)
			}
		}
		reader = bytes.NewBuffer(j)
	}

	r, err := http.NewRequestWithContext(c.Context(), method, c.url+c.basePath+path, reader)
	if err != nil {
		return http.StatusBadRequest, nil, nil, err
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	for key, value := range header {
		r.Header.Add(key, value)
	}

	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res := rec.Result()
		return res.StatusCode, res.Header, rec.Body.Bytes(), nil
	}

	res, err := c.httpClient.Do(r)
	if err != nil {
		return http.StatusInternalServerError, nil, nil, err
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	return res.StatusCode, res.Header, resBody, err
}

// decode unmarshals body into result. result can also be raw *[]byte, or nil.
func decode(body []byte, result interface{}) error {
	if len(body) == 0 || result == nil {
		return nil
	}
	if raw, ok := result.(*[]byte); ok {
		*raw = body
		return nil
	}
	return json.Unmarshal(body, result)
}

func (c Client) expect(method, path string, header map[string]string, body, result interface{}, expected ...int) (int, http.Header, error) {
	status, resHeader, resBody, err := c.do(method, path, header, body)
	if err != nil {
		return status, resHeader, err
	}
	for _, e := range expected {
		if status == e {
			return status, resHeader, decode(resBody, result)
		}
	}
	return status, resHeader, &StatusError{Method: method, Path: path, Status: status, Body: resBody}
}

// RawGet gets a resource from path. Expects http.StatusOK as response, otherwise it will
// flag an error. Returns the actual http status code.
//
// The path can be extend with query strings.
//
// result can also be raw *[]byte.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	status, _, err := c.expect(http.MethodGet, path, nil, nil, result, http.StatusOK)
	return status, err
}

// RawGetWithHeader is RawGet with additional request headers. It also returns the response header.
func (c Client) RawGetWithHeader(path string, header map[string]string, result interface{}) (int, http.Header, error) {
	return c.expect(http.MethodGet, path, header, nil, result, http.StatusOK)
}

// RawPost posts a resource to path. Expects http.StatusCreated or http.StatusOK as response,
// otherwise it will flag an error. Returns the actual http status code.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	status, _, err := c.expect(http.MethodPost, path, nil, body, result, http.StatusCreated, http.StatusOK)
	return status, err
}

// RawPostWithHeader is RawPost with additional request headers
func (c Client) RawPostWithHeader(path string, header map[string]string, body interface{}, result interface{}) (int, error) {
	status, _, err := c.expect(http.MethodPost, path, header, body, result, http.StatusCreated, http.StatusOK)
	return status, err
}

// RawPatch patches a resource at path. Expects http.StatusOK as response, otherwise it will
// flag an error. Returns the actual http status code.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPatch(path string, body interface{}, result interface{}) (int, error) {
	status, _, err := c.expect(http.MethodPatch, path, nil, body, result, http.StatusOK)
	return status, err
}

// RawDelete deletes a resource at path. Expects http.StatusNoContent or http.StatusOK
// as response, otherwise it will flag an error.
func (c Client) RawDelete(path string) (int, error) {
	status, _, err := c.expect(http.MethodDelete, path, nil, nil, nil, http.StatusNoContent, http.StatusOK)
	return status, err
}

// Do sends an arbitrary request and returns status and body without checking the status.
// Useful for testing error responses.
func (c Client) Do(method, path string, body interface{}, result interface{}) (int, error) {
	status, _, resBody, err := c.do(method, path, nil, body)
	if err != nil {
		return status, err
	}
	return status, decode(resBody, result)
}

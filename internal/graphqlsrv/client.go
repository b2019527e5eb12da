package graphqlsrv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"rockboxd/pkg/errs"
)

// loopback calls the HTTP surface on the local host. The resolvers go
// through it so the business rules have exactly one implementation.
type loopback struct {
	base string
	http *http.Client
}

func newLoopback(httpPort int) *loopback {
	return &loopback{
		base: fmt.Sprintf("http://127.0.0.1:%d", httpPort),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// do issues one request and decodes the JSON response into out (nil for 204
// responses).
func (lb *loopback) do(method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return errs.Wrap(errs.Internal, err, "failed to encode loopback request")
		}
		reqBody = buf
	}
	req, err := http.NewRequest(method, lb.base+path, reqBody)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "failed to build loopback request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := lb.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.Unavailable, err, "http surface unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return errs.New(kindForStatus(resp.StatusCode), "%s", apiErr.Error)
		}
		return errs.New(kindForStatus(resp.StatusCode), "http surface returned %d", resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Wrap(errs.Internal, err, "failed to decode loopback response")
	}
	return nil
}

func kindForStatus(status int) errs.Kind {
	switch status {
	case http.StatusNotFound:
		return errs.NotFound
	case http.StatusBadRequest:
		return errs.InvalidArgument
	case http.StatusConflict:
		return errs.AlreadyExists
	case http.StatusServiceUnavailable:
		return errs.Unavailable
	case http.StatusGatewayTimeout:
		return errs.Timeout
	case http.StatusForbidden, http.StatusUnauthorized:
		return errs.PermissionDenied
	default:
		return errs.Internal
	}
}

func (lb *loopback) get(path string, out interface{}) error {
	return lb.do(http.MethodGet, path, nil, out)
}

func (lb *loopback) post(path string, body, out interface{}) error {
	return lb.do(http.MethodPost, path, body, out)
}

func (lb *loopback) put(path string, body, out interface{}) error {
	return lb.do(http.MethodPut, path, body, out)
}

func (lb *loopback) delete(path string) error {
	return lb.do(http.MethodDelete, path, nil, nil)
}

package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"
)

const DefaultRequestTimeout = 10 * time.Minute

// DefaultHTTPClient returns a client that negotiates HTTP/2 over TLS and
// falls back to HTTP/1.1 for index nodes that don't speak it.
func DefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// ConfigureTransport only fails when the transport already has h2 set up.
	_ = http2.ConfigureTransport(tr)
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}
}

type HTTPTransferOption func(*HTTPTransfer)

func HTTPWithClient(c *http.Client) HTTPTransferOption {
	return func(t *HTTPTransfer) {
		t.client = c
	}
}

func HTTPWithHeaders(h map[string]string) HTTPTransferOption {
	return func(t *HTTPTransfer) {
		for k, v := range h {
			t.headers[k] = v
		}
	}
}

// HTTPWithToken sends a bearer token with every request.
func HTTPWithToken(token string) HTTPTransferOption {
	return func(t *HTTPTransfer) {
		if token != "" {
			t.headers["Authorization"] = "Bearer " + token
		}
	}
}

type HTTPTransfer struct {
	client  *http.Client
	headers map[string]string
}

func DefaultHTTPTransfer() *HTTPTransfer {
	return &HTTPTransfer{
		client:  DefaultHTTPClient(DefaultRequestTimeout),
		headers: map[string]string{"User-Agent": "cmipsync"},
	}
}

func NewHTTPTransfer(opts ...HTTPTransferOption) *HTTPTransfer {
	ht := DefaultHTTPTransfer()

	for _, opt := range opts {
		opt(ht)
	}

	return ht
}

type HTTPRequestOption func(*http.Request)

// HTTPRequestQuery replaces the request's query string.
func HTTPRequestQuery(q url.Values) HTTPRequestOption {
	return func(req *http.Request) {
		req.URL.RawQuery = q.Encode()
	}
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
}

// Temporary reports whether a retry could succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type HTTPResponseCallback func(*http.Response) error

// Do sends the request and hands a 2xx response to respCb. The body is
// always closed after the callback returns.
func (ht *HTTPTransfer) Do(
	ctx context.Context,
	method, url string,
	respCb HTTPResponseCallback,
	reqOpts ...HTTPRequestOption,
) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}

	for k, v := range ht.headers {
		req.Header.Set(k, v)
	}
	for _, opt := range reqOpts {
		opt(req)
	}

	resp, err := ht.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, URL: req.URL.Redacted(), StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return respCb(resp)
}

func (ht *HTTPTransfer) Get(ctx context.Context, url string, respCb HTTPResponseCallback, reqOpts ...HTTPRequestOption) error {
	return ht.Do(ctx, http.MethodGet, url, respCb, reqOpts...)
}

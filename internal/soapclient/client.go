package soapclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/torosent/soapfire/internal/envelope"
	"github.com/torosent/soapfire/internal/outcome"
)

const (
	maxLoggedBodyBytes = 1024
	maxBodyReadSize    = 1024 * 1024
)

// Target identifies the service under test.
type Target struct {
	Host               string
	Port               int
	Path               string
	TLS                bool
	InsecureSkipVerify bool
}

// URL renders the target as an absolute URL.
func (t Target) URL() string {
	scheme := "http"
	if t.TLS {
		scheme = "https"
	}
	path := t.Path
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(t.Host, strconv.Itoa(t.Port)),
		Path:   path,
	}
	return u.String()
}

// Options tune a Client.
type Options struct {
	Timeout time.Duration // per-request deadline, 0 means none
	// Verify decodes 2xx bodies and checks the echoed parameter and identifier.
	Verify bool
	// Method is the SOAP method name used to locate the result during
	// verification.
	Method string
}

// Client performs one-shot SOAP calls against a Target.
type Client struct {
	target string
	http   *http.Client
	opts   Options
}

// New builds a Client for target.
func New(target Target, opts Options) *Client {
	return &Client{
		target: target.URL(),
		http:   NewHTTPClient(target, opts.Timeout),
		opts:   opts,
	}
}

// NewHTTPClient returns an http.Client that never reuses connections.
func NewHTTPClient(target Target, timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		DisableKeepAlives:     true,
		MaxIdleConns:          0,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if target.TLS {
		transport.TLSClientConfig = &tls.Config{
			ServerName:         target.Host,
			InsecureSkipVerify: target.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Endpoint returns the absolute URL requests are posted to.
func (c *Client) Endpoint() string {
	return c.target
}

// Send posts req and converts the result into an outcome record.
func (c *Client) Send(ctx context.Context, req envelope.Request) outcome.Record {
	if ctx == nil {
		ctx = context.Background()
	}
	rec := outcome.Record{
		RequestID: req.RequestID,
		Param:     req.Param,
	}

	start := time.Now()
	finish := func(status outcome.Status) outcome.Record {
		rec.Status = status
		rec.Completed = time.Now()
		rec.Elapsed = rec.Completed.Sub(start)
		return rec
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.target, bytes.NewReader(req.Body))
	if err != nil {
		return finish(outcome.TransportError(err.Error()))
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.ContentLength = int64(len(req.Body))
	httpReq.Close = true

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return finish(outcome.TransportError(transportReason(err)))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyReadSize))
	if err != nil {
		return finish(outcome.TransportError(fmt.Sprintf("read body: %s", transportReason(err))))
	}
	// The response is always consumed to the end; only the first
	// maxBodyReadSize bytes are kept.
	overflow, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return finish(outcome.TransportError(fmt.Sprintf("read body: %s", transportReason(err))))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := body
		if len(snippet) > maxLoggedBodyBytes {
			snippet = snippet[:maxLoggedBodyBytes]
		}
		return finish(outcome.HTTPError(resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	rec = finish(outcome.Success(resp.StatusCode))
	if c.opts.Verify {
		if overflow > 0 {
			rec.Mismatch = fmt.Sprintf("response body larger than %d bytes, not verified", maxBodyReadSize)
		} else {
			rec.Verified, rec.Mismatch = verifyEcho(body, c.opts.Method, req)
		}
	}
	return rec
}

func verifyEcho(body []byte, method string, req envelope.Request) (bool, string) {
	result, err := envelope.DecodeResponse(body, method)
	if err != nil {
		return false, err.Error()
	}
	if result.Param != req.Param {
		return false, fmt.Sprintf("receivedParam %q != sent %q", result.Param, req.Param)
	}
	if result.RequestID != req.RequestID {
		return false, fmt.Sprintf("received_request_id %q != sent %q", result.RequestID, req.RequestID)
	}
	return true, ""
}

// transportReason strips the url.Error wrapper so reasons read
// "dial tcp ...: connection refused" instead of repeating the method and URL.
func transportReason(err error) string {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	if timeout {
		return "timeout: " + err.Error()
	}
	return err.Error()
}

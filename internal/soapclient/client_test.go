package soapclient

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/soapfire/internal/envelope"
	"github.com/torosent/soapfire/internal/outcome"
)

func targetFor(t *testing.T, srv *httptest.Server, path string) Target {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return Target{Host: host, Port: port, Path: path, TLS: u.Scheme == "https", InsecureSkipVerify: true}
}

func sampleRequest() envelope.Request {
	return envelope.Encode(envelope.EncodeOptions{
		Method:    "ApiMethod",
		Namespace: "http://ApiAtackDriverExampleProgram.com/",
		Action:    "urn:action",
		Sequence:  3,
		Worker:    "Wtest",
		BaseParam: 1000,
	})
}

func TestTargetURL(t *testing.T) {
	tests := []struct {
		target Target
		want   string
	}{
		{Target{Host: "127.0.0.1", Port: 8000, Path: "/soap/endpoint"}, "http://127.0.0.1:8000/soap/endpoint"},
		{Target{Host: "svc.local", Port: 443, Path: "soap", TLS: true}, "https://svc.local:443/soap"},
		{Target{Host: "::1", Port: 9000}, "http://[::1]:9000/"},
	}
	for _, tt := range tests {
		if got := tt.target.URL(); got != tt.want {
			t.Errorf("URL() = %q, want %q", got, tt.want)
		}
	}
}

func TestSendSuccessSendsHeadersAndBody(t *testing.T) {
	var (
		mu        sync.Mutex
		gotAction string
		gotType   string
		gotBody   string
		gotLength int64
		gotClose  bool
		gotMethod string
		gotPath   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotAction = r.Header.Get("SOAPAction")
		gotType = r.Header.Get("Content-Type")
		gotBody = string(b)
		gotLength = r.ContentLength
		gotClose = r.Close
		gotMethod = r.Method
		gotPath = r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req := sampleRequest()
	client := New(targetFor(t, srv, "/soap/endpoint"), Options{Timeout: 5 * time.Second})
	rec := client.Send(context.Background(), req)

	if rec.Status.Kind != outcome.KindSuccess || rec.Status.Code != http.StatusOK {
		t.Fatalf("status = %v, want SUCCESS(200)", rec.Status)
	}
	if rec.RequestID != req.RequestID || rec.Param != req.Param {
		t.Fatalf("record identity = (%q, %q), want (%q, %q)", rec.RequestID, rec.Param, req.RequestID, req.Param)
	}
	if rec.Elapsed <= 0 || rec.Completed.IsZero() {
		t.Fatalf("timing not recorded: %+v", rec)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotMethod != http.MethodPost || gotPath != "/soap/endpoint" {
		t.Errorf("request line = %s %s", gotMethod, gotPath)
	}
	if gotAction != "urn:action" {
		t.Errorf("SOAPAction = %q", gotAction)
	}
	if gotType != envelope.ContentType {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotBody != string(req.Body) || gotLength != int64(len(req.Body)) {
		t.Errorf("body mismatch: len=%d", gotLength)
	}
	if !gotClose {
		t.Errorf("expected Connection: close on one-shot request")
	}
}

func TestSendHTTPErrorTruncatesBody(t *testing.T) {
	long := strings.Repeat("x", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, long)
	}))
	defer srv.Close()

	rec := New(targetFor(t, srv, "/"), Options{}).Send(context.Background(), sampleRequest())
	if rec.Status.Kind != outcome.KindHTTPError || rec.Status.Code != 500 {
		t.Fatalf("status = %v, want HTTP 500", rec.Status)
	}
	if len(rec.Status.Reason) != maxLoggedBodyBytes {
		t.Fatalf("reason length = %d, want %d", len(rec.Status.Reason), maxLoggedBodyBytes)
	}
}

func TestSendTransportErrorOnRefusedConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	_ = ln.Close()

	target := Target{Host: "127.0.0.1", Port: addr.Port, Path: "/"}
	rec := New(target, Options{Timeout: 2 * time.Second}).Send(context.Background(), sampleRequest())
	if rec.Status.Kind != outcome.KindTransportError {
		t.Fatalf("status = %v, want transport error", rec.Status)
	}
	if rec.Status.Reason == "" {
		t.Fatalf("expected transport reason")
	}
}

func TestSendTransportErrorOnTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	rec := New(targetFor(t, srv, "/"), Options{Timeout: 50 * time.Millisecond}).Send(context.Background(), sampleRequest())
	if rec.Status.Kind != outcome.KindTransportError {
		t.Fatalf("status = %v, want transport error", rec.Status)
	}
	if !strings.Contains(rec.Status.Reason, "timeout") {
		t.Fatalf("reason = %q, want timeout", rec.Status.Reason)
	}
}

func TestSendVerifiesEcho(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		_, _ = w.Write(envelope.EncodeResponse(envelope.ResponseOptions{
			Method:    "ApiMethod",
			Param:     "1003",
			RequestID: id,
			Timestamp: time.Now(),
		}))
	}))
	defer srv.Close()

	req := sampleRequest()
	opts := Options{Verify: true, Method: "ApiMethod"}

	good := New(targetFor(t, srv, "/"), opts)
	good.target += "?id=" + url.QueryEscape(req.RequestID)
	rec := good.Send(context.Background(), req)
	if !rec.Verified {
		t.Fatalf("expected verified echo, mismatch = %q", rec.Mismatch)
	}

	bad := New(targetFor(t, srv, "/"), opts)
	bad.target += "?id=someone-else"
	rec = bad.Send(context.Background(), req)
	if rec.Verified {
		t.Fatalf("expected mismatch for cross-talk identifier")
	}
	if !strings.Contains(rec.Mismatch, "received_request_id") {
		t.Fatalf("mismatch = %q", rec.Mismatch)
	}
	if !rec.OK() {
		t.Fatalf("verification failure must not change transport status")
	}
}

func TestSendOverTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	target := targetFor(t, srv, "/")
	if !target.TLS {
		t.Fatalf("expected TLS target")
	}
	rec := New(target, Options{Timeout: 5 * time.Second}).Send(context.Background(), sampleRequest())
	if rec.Status.Kind != outcome.KindSuccess || rec.Status.Code != http.StatusAccepted {
		t.Fatalf("status = %v, want SUCCESS(202)", rec.Status)
	}
}

func TestSendConsumesLargeSuccessBody(t *testing.T) {
	const size = 3 * maxBodyReadSize
	written := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(size))
		_, err := w.Write(make([]byte, size))
		written <- err
	}))
	defer srv.Close()

	rec := New(targetFor(t, srv, "/"), Options{Timeout: 5 * time.Second, Verify: true, Method: "ApiMethod"}).
		Send(context.Background(), sampleRequest())
	if !rec.OK() {
		t.Fatalf("status = %v, want success", rec.Status)
	}
	if rec.Verified || !strings.Contains(rec.Mismatch, "not verified") {
		t.Fatalf("verified = %v, mismatch = %q", rec.Verified, rec.Mismatch)
	}
	select {
	case err := <-written:
		if err != nil {
			t.Fatalf("server write failed, body was not read to the end: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server handler did not finish")
	}
}

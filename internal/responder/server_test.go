package responder

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/torosent/soapfire/internal/envelope"
)

func TestServerServesAndShutsDown(t *testing.T) {
	srv := NewServer(newTestHandler(Options{}), 0, nil)
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, time.Second) }()

	url := "http://" + srv.Addr().String() + "/soap/endpoint"
	resp, err := http.Post(url, envelope.ContentType, strings.NewReader(requestBody(3)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServerListenFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	srv := NewServer(newTestHandler(Options{}), 0, nil)
	if err := srv.Listen(ln.Addr().String()); err == nil {
		t.Fatal("expected bind error")
	}
}

func TestServeBeforeListen(t *testing.T) {
	srv := NewServer(newTestHandler(Options{}), 0, nil)
	if err := srv.Serve(context.Background(), time.Second); err == nil {
		t.Fatal("expected error")
	}
}

func TestServerConnectionCap(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 4)
	blocking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
	})

	srv := NewServer(blocking, 1, nil)
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx, time.Second) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	url := "http://" + srv.Addr().String() + "/"
	for i := 0; i < 2; i++ {
		go func() {
			resp, err := client.Get(url)
			if err == nil {
				resp.Body.Close()
			}
		}()
	}

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first request never reached the handler")
	}
	select {
	case <-entered:
		t.Fatal("second connection was served while the cap was held")
	case <-time.After(150 * time.Millisecond):
	}

	close(release)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("second request was not served after release")
	}
}

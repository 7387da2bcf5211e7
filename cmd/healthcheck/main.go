// Command healthcheck exits 0 when the local flvwatch service answers /healthz.
// It is meant for container HEALTHCHECK directives, where curl may be absent.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	if err := check(context.Background(), healthURL(os.Getenv("HTTP_ADDR"))); err != nil {
		log.Printf("healthcheck failed: %v", err)
		os.Exit(1)
	}
}

// healthURL turns a listen address such as ":8080" or "0.0.0.0:9000" into a loopback URL.
func healthURL(addr string) string {
	if addr == "" {
		addr = ":8080"
	}
	host, port, ok := strings.Cut(addr, ":")
	if !ok {
		port = addr
	}
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return "http://" + host + ":" + port + "/healthz"
}

func check(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return &statusErr{code: resp.StatusCode}
	}
	return nil
}

type statusErr struct{ code int }

func (e *statusErr) Error() string { return "unexpected status " + http.StatusText(e.code) }

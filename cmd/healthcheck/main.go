// Package main is a minimal HTTP health probe for distroless containers. It
// exits 0 when the service's /health endpoint answers 200 and 1 otherwise.
// Build with CGO_ENABLED=0 for a static binary.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"ratekeeper/internal/version"
)

func main() {
	if err := probe(healthURL(os.Getenv), http.DefaultTransport); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// healthURL honours RATEKEEPER_PORT so the probe follows the server's port
// override.
func healthURL(getenv func(string) string) string {
	port := getenv("RATEKEEPER_PORT")
	if port == "" {
		port = "8080"
	}
	return "http://localhost:" + port + "/health"
}

func probe(url string, transport http.RoundTripper) error {
	client := &http.Client{Timeout: 3 * time.Second, Transport: transport}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.GetInfo().UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

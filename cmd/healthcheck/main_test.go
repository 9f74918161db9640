package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthURL(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }

	assert.Equal(t, "http://localhost:8080/health", healthURL(getenv))

	env["RATEKEEPER_PORT"] = "9000"
	assert.Equal(t, "http://localhost:9000/health", healthURL(getenv))
}

func TestProbe(t *testing.T) {
	status := http.StatusOK
	var userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.UserAgent()
		w.WriteHeader(status)
	}))
	defer srv.Close()

	assert.NoError(t, probe(srv.URL+"/health", http.DefaultTransport))
	assert.True(t, strings.HasPrefix(userAgent, "ratekeeper/"))

	status = http.StatusServiceUnavailable
	assert.ErrorContains(t, probe(srv.URL+"/health", http.DefaultTransport), "503")
}

func TestProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.Error(t, probe(url, http.DefaultTransport))
}

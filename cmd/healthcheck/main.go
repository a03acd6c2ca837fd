// Command healthcheck probes the service's /healthz endpoint for container HEALTHCHECKs.
// It exits 0 when the endpoint answers 200 and 1 otherwise.
//
// The target defaults to HTTP_ADDR on localhost and can be overridden with HEALTHCHECK_URL.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	url := os.Getenv("HEALTHCHECK_URL")
	if url == "" {
		url = healthURL(os.Getenv("HTTP_ADDR"))
	}
	os.Exit(probe(url))
}

// healthURL turns a listen address (":8080", "0.0.0.0:9000", "host:80") into the /healthz URL.
func healthURL(addr string) string {
	if addr == "" || strings.EqualFold(addr, "off") {
		addr = ":8080"
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/healthz"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/healthz"
}

func probe(url string) int {
	client := &http.Client{Timeout: 3 * time.Second}
	ctx := context.Background()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 1
	}
	resp, err := client.Do(req)
	if err != nil {
		return 1
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

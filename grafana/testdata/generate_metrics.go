// Package testdata provides utilities for generating sample metrics data
// to test Grafana dashboards without using real production data.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics for testing dashboards. Names mirror what the OTel Prometheus
// exporter produces for the daemon's instruments.
var (
	extractionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealsense_extraction_runs_total",
			Help: "Total extraction pipeline runs",
		},
		[]string{"method"},
	)
	extractionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealsense_extraction_latency_seconds",
			Help:    "Extraction pipeline latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	llmCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealsense_extraction_llm_calls_total",
			Help: "Total LLM tool calls",
		},
		[]string{"tool", "outcome"},
	)
	llmFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealsense_extraction_llm_fallbacks_total",
			Help: "Total LLM calls degraded to the pattern baseline",
		},
		[]string{"tool"},
	)
	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealsense_extraction_tokens_total",
			Help: "Total LLM tokens consumed",
		},
		[]string{"kind"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealsense_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealsense_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func init() {
	prometheus.MustRegister(
		extractionRuns,
		extractionLatency,
		llmCalls,
		llmFallbacks,
		tokensTotal,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9450"
	}

	// Generate initial sample data
	generateSampleData()

	// Start background goroutine to continuously generate data
	ctx, cancel := context.WithCancel(context.Background())
	go generateContinuousData(ctx)

	// Serve metrics
	http.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + port,
		Handler: nil,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
		server.Shutdown(context.Background())
	}()

	fmt.Printf("Sample metrics server running on http://localhost:%s/metrics\n", port)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println("\nTo use with Prometheus, add this to prometheus.yml:")
	fmt.Printf("  - job_name: 'dealsense-test'\n    static_configs:\n      - targets: ['localhost:%s']\n", port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

var (
	methods   = []string{"pattern", "hybrid", "llm"}
	tools     = []string{"analyze", "cluster", "roles"}
	endpoints = []string{"/api/v1/extract", "/api/v1/strategy", "/api/v1/confidence", "/health"}
)

func generateSampleData() {
	for i := 0; i < 100; i++ {
		method := randomChoice(methods)
		extractionRuns.WithLabelValues(method).Inc()
		extractionLatency.WithLabelValues(method).Observe(rand.Float64() * 5.0)
	}

	for i := 0; i < 300; i++ {
		tool := randomChoice(tools)
		outcome := randomChoice([]string{"ok", "ok", "ok", "error"})
		llmCalls.WithLabelValues(tool, outcome).Inc()
		if outcome == "error" {
			llmFallbacks.WithLabelValues(tool).Inc()
		}
	}

	for i := 0; i < 100; i++ {
		tokensTotal.WithLabelValues("prompt").Add(float64(rand.Intn(2000) + 500))
		tokensTotal.WithLabelValues("completion").Add(float64(rand.Intn(800) + 100))
	}

	for i := 0; i < 200; i++ {
		endpoint := randomChoice(endpoints)
		httpMethod := "POST"
		if endpoint == "/health" {
			httpMethod = "GET"
		}
		httpRequestsTotal.WithLabelValues(httpMethod, endpoint, randomChoice([]string{"200", "200", "200", "400", "500"})).Inc()
		httpRequestDuration.WithLabelValues(httpMethod, endpoint).Observe(rand.Float64() * 2.0)
	}
}

func generateContinuousData(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rand.Float64() > 0.4 {
				method := randomChoice(methods)
				extractionRuns.WithLabelValues(method).Inc()
				extractionLatency.WithLabelValues(method).Observe(rand.Float64() * 5.0)
			}
			if rand.Float64() > 0.3 {
				tool := randomChoice(tools)
				outcome := randomChoice([]string{"ok", "ok", "ok", "error"})
				llmCalls.WithLabelValues(tool, outcome).Inc()
				if outcome == "error" {
					llmFallbacks.WithLabelValues(tool).Inc()
				}
				tokensTotal.WithLabelValues("prompt").Add(float64(rand.Intn(2000) + 500))
				tokensTotal.WithLabelValues("completion").Add(float64(rand.Intn(800) + 100))
			}
			if rand.Float64() > 0.2 {
				endpoint := randomChoice(endpoints)
				httpMethod := "POST"
				if endpoint == "/health" {
					httpMethod = "GET"
				}
				httpRequestsTotal.WithLabelValues(httpMethod, endpoint, "200").Inc()
				httpRequestDuration.WithLabelValues(httpMethod, endpoint).Observe(rand.Float64() * 2.0)
			}
		}
	}
}

func randomChoice(choices []string) string {
	return choices[rand.Intn(len(choices))]
}

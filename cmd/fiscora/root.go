package main

import (
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "fiscora"}

	root.AddCommand(migrateCMD(), ingestCMD(), askCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// serveMetrics exposes the Prometheus registry when an address is set.
func serveMetrics(addr string, logger *log.Logger) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Printf("warn: metrics server stopped: %v", err)
		}
	}()
}

func newLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, prefix, log.LstdFlags)
}

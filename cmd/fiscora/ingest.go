package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fiscora-ai/fiscora/config"
	"github.com/fiscora-ai/fiscora/internal/ingest"
	"github.com/fiscora-ai/fiscora/internal/segment"
	"github.com/fiscora-ai/fiscora/internal/store"
	"github.com/fiscora-ai/fiscora/provider"
)

func ingestCMD() *cobra.Command {
	var cfgPath string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "ingest <file-or-directory>",
		Short: "Parse, segment, embed and store scraped documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.LoadConfig(cfgPath)
			logger := newLogger("[INGEST] ")
			serveMetrics(metricsAddr, logger)

			prov, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return fmt.Errorf("creating provider: %w", err)
			}

			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return fmt.Errorf("postgres not configured: %w", err)
			}
			st, err := store.New(ctx, dsn)
			if err != nil {
				return fmt.Errorf("connecting to store: %w", err)
			}
			defer st.Close()

			seg := segment.NewSegmenter(cfg.Segmenter, newLogger("[SEGMENTER] "))
			ing := ingest.New(seg, prov, st, logger)

			stats, err := ing.IngestPath(ctx, args[0])
			if err != nil {
				return err
			}
			logger.Printf("done: %d documents (%d skipped), %d segments, %d stored, %d embed failures, %d upsert failures",
				stats.Documents, stats.SkippedDocs, stats.Segments, stats.Stored,
				stats.EmbedFailures, stats.UpsertFailures)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose /metrics on this address")
	return cmd
}

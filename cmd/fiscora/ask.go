package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fiscora-ai/fiscora/config"
	"github.com/fiscora-ai/fiscora/internal/cache"
	"github.com/fiscora-ai/fiscora/internal/compose"
	"github.com/fiscora-ai/fiscora/internal/retrieval"
	"github.com/fiscora-ai/fiscora/internal/segment"
	"github.com/fiscora-ai/fiscora/internal/store"
	"github.com/fiscora-ai/fiscora/internal/webaug"
	"github.com/fiscora-ai/fiscora/provider"
	"github.com/fiscora-ai/fiscora/tools/websearch"
)

func askCMD() *cobra.Command {
	var cfgPath string
	var metricsAddr string
	var years []int
	var topicFlags []string
	var noWeb bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a Dutch tax question from the indexed sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.LoadConfig(cfgPath)
			logger := newLogger("[ASK] ")
			serveMetrics(metricsAddr, logger)

			question := strings.Join(args, " ")
			requestID := uuid.NewString()[:8]
			logger.Printf("request %s: %q", requestID, question)

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

			emb := cache.New(ctx, cfg.Storage.Redis, newLogger("[CACHE] "))
			defer emb.Close()

			engine := retrieval.NewEngine(st, prov, emb, cfg.Retrieval,
				cfg.LLM.EmbeddingModel, newLogger("[RETRIEVAL] "))

			var topics []segment.Topic
			for _, t := range topicFlags {
				topics = append(topics, segment.ParseTopic(t))
			}
			candidates, err := engine.Search(ctx, retrieval.Query{
				Text:   question,
				Years:  years,
				Topics: topics,
			})
			if err != nil {
				return fmt.Errorf("retrieval: %w", err)
			}
			logger.Printf("request %s: %d internal candidates", requestID, len(candidates))

			var sources webaug.Sources
			if !noWeb && cfg.WebAug.Enabled {
				evaluator := retrieval.NewEvaluator(prov, cfg.Retrieval.MinInternalCandidates,
					newLogger("[SUFFICIENCY] "))
				if evaluator.NeedsAugmentation(ctx, question, nil, candidates) {
					searcher, err := websearch.NewWebSearcher(cfg.Search)
					if err != nil {
						logger.Printf("warn: web search unavailable: %v", err)
					} else {
						pipeline := webaug.NewPipeline(cfg.WebAug, searcher, prov, nil,
							newLogger("[WEBAUG] "))
						sources = pipeline.Run(ctx, question, nil)
						logger.Printf("request %s: %d web sources", requestID, len(sources.URLs))
					}
				}
			}

			segs := make([]segment.Segment, 0, len(candidates))
			for _, c := range candidates {
				segs = append(segs, c.Segment)
			}

			composer := compose.New(prov, newLogger("[COMPOSE] "))
			events, err := composer.Stream(ctx, compose.Request{
				Question: question,
				Segments: segs,
				WebBlock: sources.Block,
				WebURLs:  sources.URLs,
			})
			if err != nil {
				return err
			}

			var citations []compose.Citation
			for ev := range events {
				if ev.Err != nil {
					fmt.Fprintln(os.Stdout)
					return ev.Err
				}
				fmt.Fprint(os.Stdout, ev.Text)
				if ev.Citations != nil {
					citations = ev.Citations
				}
			}
			fmt.Fprintln(os.Stdout)
			if len(citations) > 0 {
				fmt.Fprintln(os.Stdout, "\nBronnen:")
				for _, ct := range citations {
					if ct.URL != "" {
						fmt.Fprintf(os.Stdout, "- %s (%s)\n", ct.Label, ct.URL)
					} else {
						fmt.Fprintf(os.Stdout, "- %s\n", ct.Label)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose /metrics on this address")
	cmd.Flags().IntSliceVar(&years, "year", nil, "filter by tax year (repeatable)")
	cmd.Flags().StringSliceVar(&topicFlags, "topic", nil, "filter by topic (repeatable)")
	cmd.Flags().BoolVar(&noWeb, "no-web", false, "disable web augmentation")
	return cmd
}

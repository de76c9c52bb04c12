// Package main provides the skein CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rowanlock/skein/cli"
	"github.com/rowanlock/skein/model"
	"github.com/rowanlock/skein/store"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider string
	dbPath   string
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "skein",
		Short: "Streaming ingestion-to-context engine",
		Long: `Skein turns a stream of acquired content into bounded context:
items are summarized into marker digests as they arrive, full content is
retrieved on demand under a per-step budget, and step digests are kept
novel across the whole session.`,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", ".skein/skein.db", "Database path for artifacts")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(overviewCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(stepsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider: provider,
		DBPath:   dbPath,
		Verbose:  verbose,
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM so a run
// can be interrupted and its items failed cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Summarize every file under a directory into marker digests",
		Long: `Ingest runs the full pipeline over a directory: each regular file
becomes one content item, workers summarize items into marker digests as
they arrive, and the marker overview is printed once every item reaches
a terminal state. A "<name>.discussion" sidecar file is attached to its
base file as secondary discussion.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return cli.Ingest(ctx, args[0], options())
		},
	}
}

func overviewCmd() *cobra.Command {
	var items []string
	var factsOnly, opinionsOnly, datapointsOnly bool

	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Print the marker overview for a persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			filter := store.MarkerTypeFilter{
				FactsOnly:      factsOnly,
				OpinionsOnly:   opinionsOnly,
				DatapointsOnly: datapointsOnly,
			}
			return cli.Overview(ctx, items, filter, options())
		},
	}

	cmd.Flags().StringArrayVar(&items, "item", nil, "Item id to include (repeatable; default all)")
	cmd.Flags().BoolVar(&factsOnly, "facts", false, "Show key facts only")
	cmd.Flags().BoolVar(&opinionsOnly, "opinions", false, "Show key opinions only")
	cmd.Flags().BoolVar(&datapointsOnly, "datapoints", false, "Show key datapoints only")

	return cmd
}

func fetchCmd() *cobra.Command {
	var stepID int
	var kind string
	var contentTypes []string
	var priority int

	cmd := &cobra.Command{
		Use:   "fetch [target]",
		Short: "Retrieve full content from a persisted session under the step budget",
		Long: `Fetch submits one retrieval round for a step. The kind selects how
the target resolves:
- full_content_item: target is an item id
- by_marker: target is marker text to search for
- by_topic: target is a topic label
- by_marker_set: repeat [target] for each marker in the set

Granted content is always complete; requests the budget cannot cover
come back deferred with a reason instead of truncated.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			parsedKind, err := model.ParseRequestKind(kind)
			if err != nil {
				return err
			}
			var types []model.ContentType
			for _, t := range contentTypes {
				ct, err := model.ParseContentType(t)
				if err != nil {
					return err
				}
				types = append(types, ct)
			}

			req := model.RetrievalRequest{
				StepID:       stepID,
				Kind:         parsedKind,
				ContentTypes: types,
				Priority:     priority,
				Reason:       "cli fetch",
			}
			if parsedKind == model.KindByMarkerSet {
				req.Targets = args
			} else {
				if len(args) != 1 {
					return fmt.Errorf("kind %s takes exactly one target", parsedKind)
				}
				req.Target = args[0]
			}
			return cli.Fetch(ctx, stepID, []model.RetrievalRequest{req}, options())
		},
	}

	cmd.Flags().IntVar(&stepID, "step", 1, "Requesting step id")
	cmd.Flags().StringVar(&kind, "kind", "full_content_item", "Request kind (full_content_item, by_marker, by_topic, by_marker_set)")
	cmd.Flags().StringArrayVar(&contentTypes, "type", nil, "Content type to include (repeatable: primary_text, secondary_discussion)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Request priority (higher admits first)")

	return cmd
}

func stepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List recorded step digests for a persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return cli.Steps(ctx, options())
		},
	}
}

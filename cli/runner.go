// Command execution for CLI commands.
//
// Information Hiding:
// - Engine setup and teardown hidden
// - Acquisition event synthesis from local files hidden
// - Output formatting hidden
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rowanlock/skein/config"
	"github.com/rowanlock/skein/digest"
	"github.com/rowanlock/skein/engine"
	"github.com/rowanlock/skein/llm"
	"github.com/rowanlock/skein/model"
	"github.com/rowanlock/skein/store"
	"github.com/rowanlock/skein/summarize"
)

// Options holds CLI execution options.
type Options struct {
	Provider string
	DBPath   string
	Verbose  bool
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{DBPath: ".skein/skein.db"}
}

// discussionSuffix marks a sidecar file holding an item's secondary
// discussion, e.g. report.txt + report.txt.discussion.
const discussionSuffix = ".discussion"

// Ingest reads every regular file under dir as one content item, runs
// the full acquire-summarize pipeline, and prints the marker overview.
func Ingest(ctx context.Context, dir string, opts Options) error {
	configureLogging(opts.Verbose)

	settings, err := config.New()
	if err != nil {
		return err
	}

	provider, err := createProvider(opts.Provider)
	if err != nil {
		return err
	}

	artifacts, err := store.OpenSqliteArtifacts(opts.DBPath)
	if err != nil {
		return err
	}

	bounds := model.DigestBounds{
		ListMin:  settings.Summarize.MarkerListMin,
		ListMax:  settings.Summarize.MarkerListMax,
		WordsMax: settings.Summarize.MarkerWordsMax,
	}
	summarizer := summarize.NewLLMSummarizer(provider, artifacts, bounds)

	eng := engine.New(settings, artifacts, summarizer, scorerFor(provider))
	defer eng.Close()

	items, err := collectItems(dir)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no content files found under %s", dir)
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ItemID)
	}
	eng.RegisterExpected(ids)
	eng.Start(ctx)

	fmt.Printf("Ingesting %d items from %s...\n", len(items), dir)
	start := time.Now()

	for _, item := range items {
		ev := model.AcquisitionEvent{ItemID: item.ItemID, RawRef: store.RawKey(item.ItemID)}
		payload, err := json.Marshal(item)
		if err != nil {
			ev.Err = err.Error()
		} else if err := artifacts.Save(ctx, ev.RawRef, string(payload)); err != nil {
			ev.Err = err.Error()
		}
		eng.OnAcquired(ctx, ev)
	}

	if err := eng.AwaitCompletion(ctx); err != nil {
		eng.Cancel()
		return err
	}

	summarized, failed := 0, 0
	for _, item := range eng.Snapshot() {
		if item.Summarization == model.SummarizationDone {
			summarized++
		} else {
			failed++
		}
	}
	fmt.Printf("Done in %s: %d summarized, %d failed\n\n", time.Since(start).Round(time.Millisecond), summarized, failed)
	fmt.Println(eng.MarkerOverview(nil, store.MarkerTypeFilter{}))

	if usage := summarizer.Usage(); usage.TotalTokens > 0 {
		fmt.Printf("Token usage: %d prompt, %d completion\n", usage.PromptTokens, usage.CompletionTokens)
	}
	return nil
}

// Overview prints the marker overview for a persisted session.
func Overview(ctx context.Context, ids []string, filter store.MarkerTypeFilter, opts Options) error {
	configureLogging(opts.Verbose)

	artifacts, err := store.OpenSqliteArtifacts(opts.DBPath)
	if err != nil {
		return err
	}
	defer artifacts.Close()

	markers := store.NewMarkerStore(artifacts)
	if err := markers.Load(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		ids = markers.ItemIDs()
	}
	if len(ids) == 0 {
		return fmt.Errorf("no digests stored in %s", opts.DBPath)
	}
	fmt.Println(markers.Overview(ids, filter))
	return nil
}

// Fetch resolves one retrieval round for a step against a persisted
// session and prints the granted content.
func Fetch(ctx context.Context, stepID int, requests []model.RetrievalRequest, opts Options) error {
	configureLogging(opts.Verbose)

	settings, err := config.New()
	if err != nil {
		return err
	}
	artifacts, err := store.OpenSqliteArtifacts(opts.DBPath)
	if err != nil {
		return err
	}

	eng := engine.New(settings, artifacts, nil, nil)
	defer eng.Close()
	if err := eng.Resume(ctx); err != nil {
		return err
	}

	responses, err := eng.SubmitRequests(ctx, stepID, requests)
	if err != nil {
		return err
	}

	for _, resp := range responses {
		fmt.Printf("[%s] %s %s", resp.Status, resp.Request.Kind, requestTarget(resp.Request))
		switch resp.Status {
		case model.StatusGranted:
			fmt.Printf(" (%d units)\n", resp.CostUnits)
			for _, item := range resp.Items {
				fmt.Printf("\n--- %s ---\n%s\n", item.ItemID, item.Primary)
				if item.Discussion != "" {
					fmt.Printf("\n[discussion]\n%s\n", item.Discussion)
				}
			}
		default:
			fmt.Printf(" (%s)\n", resp.Reason)
		}
	}

	consumed, rounds := eng.BudgetUsage(stepID)
	fmt.Printf("\nStep %d budget: %d/%d units, round %d/%d\n",
		stepID, consumed, settings.Retrieve.ContextWindowLimit,
		rounds, settings.Retrieve.MaxFollowupsPerStep)
	return nil
}

// Steps prints all recorded step digests for a persisted session.
func Steps(ctx context.Context, opts Options) error {
	configureLogging(opts.Verbose)

	artifacts, err := store.OpenSqliteArtifacts(opts.DBPath)
	if err != nil {
		return err
	}
	defer artifacts.Close()

	aggregator := digest.NewAggregator(artifacts)
	if err := aggregator.Load(ctx); err != nil {
		return err
	}

	digests := aggregator.All()
	if len(digests) == 0 {
		fmt.Println("No step digests recorded.")
		return nil
	}
	for _, d := range digests {
		fmt.Printf("## Step %d: %s\n%s\n", d.StepID, d.GoalText, d.Summary)
		for _, p := range d.PointsOfInterest {
			fmt.Printf("- %s\n", p)
		}
		for _, e := range d.NotableEvidence {
			fmt.Printf("* %s\n", e)
		}
		fmt.Println()
	}
	return nil
}

func createProvider(name string) (llm.Provider, error) {
	if name == "" {
		name = os.Getenv("SKEIN_PROVIDER")
	}
	if name == "" {
		name = "openai"
	}
	providerType, err := llm.ParseProviderType(name)
	if err != nil {
		return nil, err
	}
	return providerType.FromEnv()
}

// scorerFor returns an embedding scorer when the provider supports
// embeddings, otherwise nil so the filter falls back to keyword overlap.
func scorerFor(provider llm.Provider) digest.Scorer {
	if embedder, ok := provider.(llm.Embedder); ok {
		return digest.NewEmbeddingScorer(embedder)
	}
	return nil
}

func configureLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// collectItems walks dir and builds one raw content record per regular
// file. A "<name>.discussion" sidecar becomes its base file's secondary
// discussion rather than an item of its own.
func collectItems(dir string) ([]model.RawContent, error) {
	primaries := make(map[string]*model.RawContent)
	discussions := make(map[string]string)
	var order []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if strings.HasSuffix(rel, discussionSuffix) {
			discussions[strings.TrimSuffix(rel, discussionSuffix)] = string(content)
			return nil
		}
		primaries[rel] = &model.RawContent{ItemID: rel, Primary: string(content)}
		order = append(order, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	items := make([]model.RawContent, 0, len(order))
	for _, id := range order {
		item := primaries[id]
		item.Discussion = discussions[id]
		items = append(items, *item)
	}
	return items, nil
}

func requestTarget(req model.RetrievalRequest) string {
	if req.Kind == model.KindByMarkerSet {
		return strings.Join(req.Targets, ", ")
	}
	return req.Target
}

// Package config provides engine settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Cross-field sanity checks (marker list bounds, budget knobs)

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Settings holds all engine configuration.
type Settings struct {
	Ingest    IngestConfig
	Summarize SummarizeConfig
	Retrieve  RetrieveConfig
	Novelty   NoveltyConfig
}

// IngestConfig holds coordinator and completion-check configuration.
type IngestConfig struct {
	// PollInterval is how often AwaitCompletion re-checks item states.
	PollInterval time.Duration
	// QueueDepth is the capacity of the summarization queue.
	QueueDepth int
}

// SummarizeConfig holds worker pool and digest validation configuration.
type SummarizeConfig struct {
	NumWorkers    int
	MarkerListMin int
	MarkerListMax int
	// MarkerWordsMax bounds the length of a single marker string.
	MarkerWordsMax int
	// CallTimeout bounds one summarization collaborator call.
	CallTimeout time.Duration
	// RetryAttempts is the number of attempts per item before the pool
	// degrades to a fallback digest.
	RetryAttempts int
	// RetryInitialDelay seeds the exponential backoff between attempts.
	RetryInitialDelay time.Duration
}

// RetrieveConfig holds per-step retrieval budget configuration.
type RetrieveConfig struct {
	// ContextWindowLimit is the total budget units available per step.
	ContextWindowLimit  int
	MaxItemsPerRound    int
	MaxFollowupsPerStep int
	// UnitBytes is the byte size of one budget unit; item cost is
	// ceil(byte_size / UnitBytes) with a minimum of one unit.
	UnitBytes int
}

// NoveltyConfig holds cross-step novelty filter configuration.
type NoveltyConfig struct {
	SimilarityThreshold     float64
	AllowRevisionDuplicates bool
}

// New creates settings from environment variables.
// Returns an error if any variable contains an invalid value.
func New() (Settings, error) {
	pollInterval, err := getEnvDuration("SKEIN_POLL_INTERVAL", 50*time.Millisecond)
	if err != nil {
		return Settings{}, err
	}
	queueDepth, err := getEnvInt("SKEIN_QUEUE_DEPTH", 256)
	if err != nil {
		return Settings{}, err
	}
	numWorkers, err := getEnvInt("SKEIN_NUM_WORKERS", 8)
	if err != nil {
		return Settings{}, err
	}
	listMin, err := getEnvInt("SKEIN_MARKER_LIST_MIN", 5)
	if err != nil {
		return Settings{}, err
	}
	listMax, err := getEnvInt("SKEIN_MARKER_LIST_MAX", 15)
	if err != nil {
		return Settings{}, err
	}
	wordsMax, err := getEnvInt("SKEIN_MARKER_WORDS_MAX", 50)
	if err != nil {
		return Settings{}, err
	}
	callTimeout, err := getEnvDuration("SKEIN_SUMMARIZE_TIMEOUT", 60*time.Second)
	if err != nil {
		return Settings{}, err
	}
	retryAttempts, err := getEnvInt("SKEIN_SUMMARIZE_RETRIES", 3)
	if err != nil {
		return Settings{}, err
	}
	retryDelay, err := getEnvDuration("SKEIN_SUMMARIZE_RETRY_DELAY", 500*time.Millisecond)
	if err != nil {
		return Settings{}, err
	}
	windowLimit, err := getEnvInt("SKEIN_CONTEXT_WINDOW_LIMIT", 64)
	if err != nil {
		return Settings{}, err
	}
	itemsPerRound, err := getEnvInt("SKEIN_MAX_ITEMS_PER_ROUND", 4)
	if err != nil {
		return Settings{}, err
	}
	followups, err := getEnvInt("SKEIN_MAX_FOLLOWUPS_PER_STEP", 5)
	if err != nil {
		return Settings{}, err
	}
	unitBytes, err := getEnvInt("SKEIN_BUDGET_UNIT_BYTES", 4096)
	if err != nil {
		return Settings{}, err
	}
	threshold, err := getEnvFloat64("SKEIN_NOVELTY_SIMILARITY_THRESHOLD", 0.8)
	if err != nil {
		return Settings{}, err
	}
	allowRevisions, err := getEnvBool("SKEIN_ALLOW_REVISION_DUPLICATES", false)
	if err != nil {
		return Settings{}, err
	}

	s := Settings{
		Ingest: IngestConfig{
			PollInterval: pollInterval,
			QueueDepth:   queueDepth,
		},
		Summarize: SummarizeConfig{
			NumWorkers:        numWorkers,
			MarkerListMin:     listMin,
			MarkerListMax:     listMax,
			MarkerWordsMax:    wordsMax,
			CallTimeout:       callTimeout,
			RetryAttempts:     retryAttempts,
			RetryInitialDelay: retryDelay,
		},
		Retrieve: RetrieveConfig{
			ContextWindowLimit:  windowLimit,
			MaxItemsPerRound:    itemsPerRound,
			MaxFollowupsPerStep: followups,
			UnitBytes:           unitBytes,
		},
		Novelty: NoveltyConfig{
			SimilarityThreshold:     threshold,
			AllowRevisionDuplicates: allowRevisions,
		},
	}
	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// MustNew creates settings from environment variables.
// Panics on invalid values. Use only when configuration errors are fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

func (s Settings) validate() error {
	if s.Summarize.NumWorkers < 1 {
		return fmt.Errorf("SKEIN_NUM_WORKERS must be at least 1, got %d", s.Summarize.NumWorkers)
	}
	if s.Summarize.MarkerListMin < 0 || s.Summarize.MarkerListMax < s.Summarize.MarkerListMin {
		return fmt.Errorf("marker list bounds invalid: min=%d max=%d",
			s.Summarize.MarkerListMin, s.Summarize.MarkerListMax)
	}
	if s.Retrieve.ContextWindowLimit < 1 {
		return fmt.Errorf("SKEIN_CONTEXT_WINDOW_LIMIT must be at least 1, got %d", s.Retrieve.ContextWindowLimit)
	}
	if s.Retrieve.UnitBytes < 1 {
		return fmt.Errorf("SKEIN_BUDGET_UNIT_BYTES must be at least 1, got %d", s.Retrieve.UnitBytes)
	}
	if s.Novelty.SimilarityThreshold < 0 || s.Novelty.SimilarityThreshold > 1 {
		return fmt.Errorf("SKEIN_NOVELTY_SIMILARITY_THRESHOLD must be in [0,1], got %g", s.Novelty.SimilarityThreshold)
	}
	return nil
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}

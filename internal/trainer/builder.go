package trainer

import (
	"fmt"

	"github.com/marketsci/robynq/internal/model"
)

// Defaults applied to every optional training parameter so the worker
// never has to guess
const (
	DefaultRevision        = "default"
	DefaultCountry         = "global"
	DefaultIterations      = 2000
	DefaultTrials          = 5
	DefaultAdstock         = model.AdstockGeometric
	DefaultTrainSplit      = 0.70
	DefaultValidationSplit = 0.15
	DefaultTestSplit       = 0.15
)

// knownParams are the keys the builder interprets; everything else is
// passed through to the worker in the config's extra section.
var knownParams = map[string]bool{
	"data_gcs_path":     true,
	"bq_query":          true,
	"country":           true,
	"revision":          true,
	"iterations":        true,
	"trials":            true,
	"adstock":           true,
	"train_split":       true,
	"validation_split":  true,
	"test_split":        true,
	"benchmark_variant": true,
}

// ConfigError reports job parameters that cannot produce a complete,
// worker-consumable config. The entry is failed before any remote call.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s", e.Reason)
}

// ResultPrefix is the single derivation of the output location shared
// by the launcher and, via the embedded config value, the worker.
func ResultPrefix(revision, country, timestamp string) string {
	return fmt.Sprintf("%s/%s/%s", revision, country, timestamp)
}

// BuildConfig expands a job's parameters plus global defaults into a
// complete config document. Pure: the caller supplies the timestamp,
// generated exactly once per launch.
func BuildConfig(params map[string]interface{}, timestamp, outputBucket string) (*model.TrainingConfig, error) {
	dataPath := stringParam(params, "data_gcs_path", "")
	bqQuery := stringParam(params, "bq_query", "")
	if dataPath == "" && bqQuery == "" {
		return nil, &ConfigError{Reason: "job has no data_gcs_path and no bq_query"}
	}

	country := stringParam(params, "country", DefaultCountry)
	revision := stringParam(params, "revision", DefaultRevision)

	cfg := &model.TrainingConfig{
		Country:      country,
		Revision:     revision,
		DataGCSPath:  dataPath,
		BQQuery:      bqQuery,
		OutputBucket: outputBucket,

		// The worker must prefer output_timestamp; timestamp is kept
		// for workers that only read the legacy field name.
		Timestamp:       timestamp,
		OutputTimestamp: timestamp,
		ResultPrefix:    ResultPrefix(revision, country, timestamp),

		Iterations:      intParam(params, "iterations", DefaultIterations),
		Trials:          intParam(params, "trials", DefaultTrials),
		Adstock:         stringParam(params, "adstock", DefaultAdstock),
		TrainSplit:      floatParam(params, "train_split", DefaultTrainSplit),
		ValidationSplit: floatParam(params, "validation_split", DefaultValidationSplit),
		TestSplit:       floatParam(params, "test_split", DefaultTestSplit),

		BenchmarkVariant: stringParam(params, "benchmark_variant", ""),
	}

	for key, value := range params {
		if knownParams[key] {
			continue
		}
		if cfg.Extra == nil {
			cfg.Extra = make(map[string]interface{})
		}
		cfg.Extra[key] = value
	}

	return cfg, nil
}

func stringParam(params map[string]interface{}, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// intParam accepts both int and float64 since JSON-decoded params
// arrive as float64
func intParam(params map[string]interface{}, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func floatParam(params map[string]interface{}, key string, fallback float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

package model

// TrainingConfig is the complete, self-contained parameter set written
// to object storage for a single launched training job. Created once at
// launch, never mutated.
type TrainingConfig struct {
	RunID        string `json:"run_id"`
	Country      string `json:"country"`
	Revision     string `json:"revision"`
	DataGCSPath  string `json:"data_gcs_path,omitempty"`
	BQQuery      string `json:"bq_query,omitempty"`
	OutputBucket string `json:"output_bucket"`

	// Timestamp is the legacy field name older workers read;
	// OutputTimestamp is the field current workers must prefer.
	// Both always carry the same value.
	Timestamp       string `json:"timestamp"`
	OutputTimestamp string `json:"output_timestamp"`

	// ResultPrefix is the already-computed output location so the
	// worker never re-derives it from timestamp/country/revision.
	ResultPrefix string `json:"result_prefix"`

	Iterations      int     `json:"iterations"`
	Trials          int     `json:"trials"`
	Adstock         string  `json:"adstock"`
	TrainSplit      float64 `json:"train_split"`
	ValidationSplit float64 `json:"validation_split"`
	TestSplit       float64 `json:"test_split"`

	BenchmarkVariant string `json:"benchmark_variant,omitempty"`

	// Extra carries producer-defined parameters the orchestrator does
	// not interpret, passed through to the worker untouched.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Adstock models supported by the trainer
const (
	AdstockGeometric  = "geometric"
	AdstockWeibullCDF = "weibull_cdf"
	AdstockWeibullPDF = "weibull_pdf"
)

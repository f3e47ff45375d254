package melodex

import (
	"log/slog"

	"github.com/hupe1980/melodex/chain"
	"github.com/hupe1980/melodex/distance"
	"github.com/hupe1980/melodex/feature"
	"github.com/hupe1980/melodex/model"
	"github.com/hupe1980/melodex/register"
	"github.com/hupe1980/melodex/segment"
	"github.com/hupe1980/melodex/snapshot"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	metric           distance.Metric
	modes            []model.Mode
	segmentMode      model.Mode
	extractorOptFns  []func(*feature.Options)
	scorerOptFns     []func(*segment.Options)
	chainOptFns      []func(*chain.Options)
	registrarOptFns  []func(*register.Options)
	snapshotOptFns   []func(*snapshot.Options)
}

// Option configures engine constructor behavior.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := melodex.NewJSONLogger(slog.LevelInfo)
//	eng, _ := melodex.New(melodex.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &melodex.BasicMetricsCollector{}
//	eng, _ := melodex.New(melodex.WithMetricsCollector(metrics))
//	// ... use eng ...
//	stats := metrics.GetStats()
//	fmt.Printf("Queries: %d, Avg latency: %dns\n", stats.SimilarCount, stats.SimilarAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithMetric configures the distance metric used for similarity queries,
// segment scoring and chain walks. Defaults to cosine.
func WithMetric(metric distance.Metric) Option {
	return func(o *options) {
		o.metric = metric
	}
}

// WithModes configures the feature modes the engine maintains an index
// for. Defaults to minimal, balanced and full.
func WithModes(modes ...model.Mode) Option {
	return func(o *options) {
		o.modes = modes
	}
}

// WithSegmentMode configures the feature mode for segment embeddings.
// Defaults to full.
func WithSegmentMode(mode model.Mode) Option {
	return func(o *options) {
		o.segmentMode = mode
	}
}

// WithExtractorOptions forwards options to the feature extractor.
func WithExtractorOptions(optFns ...func(*feature.Options)) Option {
	return func(o *options) {
		o.extractorOptFns = append(o.extractorOptFns, optFns...)
	}
}

// WithScorerOptions forwards options to the segment scorer.
func WithScorerOptions(optFns ...func(*segment.Options)) Option {
	return func(o *options) {
		o.scorerOptFns = append(o.scorerOptFns, optFns...)
	}
}

// WithChainOptions forwards options to the chain engine.
func WithChainOptions(optFns ...func(*chain.Options)) Option {
	return func(o *options) {
		o.chainOptFns = append(o.chainOptFns, optFns...)
	}
}

// WithRegistrarOptions forwards options to the batch registrar.
func WithRegistrarOptions(optFns ...func(*register.Options)) Option {
	return func(o *options) {
		o.registrarOptFns = append(o.registrarOptFns, optFns...)
	}
}

// WithSnapshotOptions forwards options to snapshot writes (codec,
// compression).
func WithSnapshotOptions(optFns ...func(*snapshot.Options)) Option {
	return func(o *options) {
		o.snapshotOptFns = append(o.snapshotOptFns, optFns...)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		metric:           distance.MetricCosine,
		modes:            []model.Mode{model.ModeMinimal, model.ModeBalanced, model.ModeFull},
		segmentMode:      model.ModeFull,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	return o
}

// Package evaluate computes weighted percentiles for many datasets in parallel.
package evaluate

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/panbanda/wpct/internal/cache"
	"github.com/panbanda/wpct/internal/dataset"
	"github.com/panbanda/wpct/pkg/stats"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// DefaultWorkerMultiplier is the multiplier applied to NumCPU for worker count.
const DefaultWorkerMultiplier = 2

// ProcessingError is a failure to evaluate one dataset.
type ProcessingError struct {
	Name string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e ProcessingError) Unwrap() error {
	return e.Err
}

// ProcessingErrors collects per-dataset failures.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(name string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Name: name, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Error implements the error interface.
func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d datasets failed (first: %v)", len(e.Errors), e.Errors[0])
}

// Unwrap exposes every dataset error to errors.Is and errors.As.
func (e *ProcessingErrors) Unwrap() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	errs := make([]error, len(e.Errors))
	for i, pe := range e.Errors {
		errs[i] = pe
	}
	return errs
}

// Result is the outcome for one dataset. Values line up with Report.Ranks.
type Result struct {
	Name        string         `json:"name" toon:"name"`
	Source      string         `json:"source,omitempty" toon:"source"`
	Digest      string         `json:"digest,omitempty" toon:"digest"`
	Count       int            `json:"count" toon:"count"`
	Kept        int            `json:"kept" toon:"kept"`
	TotalWeight float64        `json:"total_weight" toon:"total_weight"`
	Values      []float64      `json:"values,omitempty" toon:"values"`
	Summary     *stats.Summary `json:"summary,omitempty" toon:"summary"`
	Cached      bool           `json:"cached,omitempty" toon:"cached"`
	Error       string         `json:"error,omitempty" toon:"error"`
}

// CachedResult is the part of a Result kept in a ResultCache.
type CachedResult struct {
	Values  []float64
	Summary *stats.Summary
}

// ResultCache memoizes results across Evaluate calls.
type ResultCache = cache.Cache[CachedResult]

// NewResultCache creates a ResultCache holding at most maxEntries results
// (maxEntries <= 0 uses cache.DefaultMaxEntries).
func NewResultCache(maxEntries int) *ResultCache {
	return cache.New[CachedResult](maxEntries)
}

// Report holds results in the same order as the input datasets.
type Report struct {
	Ranks   []float64 `json:"ranks" toon:"ranks"`
	Results []Result  `json:"results" toon:"results"`
	Failed  int       `json:"failed" toon:"failed"`
}

// Service evaluates datasets.
type Service struct {
	workers    int
	summary    bool
	logger     zerolog.Logger
	cache      *ResultCache
	onProgress func()
}

// Option configures a Service.
type Option func(*Service)

// WithWorkers bounds the number of datasets evaluated at once. n <= 0 uses
// 2x NumCPU.
func WithWorkers(n int) Option {
	return func(s *Service) {
		s.workers = n
	}
}

// WithSummary adds descriptive statistics to every result.
func WithSummary(enabled bool) Option {
	return func(s *Service) {
		s.summary = enabled
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithCache reuses results computed earlier for the same samples, weights,
// sorter and ranks. Failures are never cached. A nil cache is ignored.
func WithCache(c *ResultCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithProgress sets a callback invoked once per finished dataset. It may be
// called from several goroutines.
func WithProgress(fn func()) Option {
	return func(s *Service) {
		s.onProgress = fn
	}
}

// New creates a new evaluation service.
func New(opts ...Option) *Service {
	s := &Service{
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate computes the ranks for every dataset. Each dataset is evaluated on
// its own; one failing does not stop the others.
//
// Invalid ranks fail the whole call before any dataset is touched. If some
// datasets fail, the report is still returned, with their Error set, together
// with a *ProcessingErrors. Cancelling ctx stops datasets that have not
// started and returns the context error.
func (s *Service) Evaluate(ctx context.Context, datasets []*dataset.Dataset, ranks []float64) (*Report, error) {
	if len(ranks) == 0 {
		return nil, stats.ErrNoRanks
	}
	if err := stats.ValidateRanks(ranks); err != nil {
		return nil, err
	}

	report := &Report{
		Ranks:   append([]float64(nil), ranks...),
		Results: make([]Result, len(datasets)),
	}
	if len(datasets) == 0 {
		return report, nil
	}

	workers := s.workers
	if workers <= 0 {
		workers = runtime.NumCPU() * DefaultWorkerMultiplier
	}

	errs := &ProcessingErrors{}
	p := pool.New().WithContext(ctx).WithMaxGoroutines(workers)
	for i, ds := range datasets {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			result, err := s.evaluateOne(ds, report.Ranks)
			report.Results[i] = result

			if err != nil {
				errs.Add(ds.Name, err)
				s.logger.Warn().Str("dataset", ds.Name).Err(err).Msg("evaluation failed")
			} else {
				s.logger.Debug().
					Str("dataset", ds.Name).
					Int("samples", result.Count).
					Int("kept", result.Kept).
					Dur("took", time.Since(start)).
					Msg("evaluated")
			}

			if s.onProgress != nil {
				s.onProgress()
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	report.Failed = len(errs.Errors)
	if errs.HasErrors() {
		return report, errs
	}
	return report, nil
}

func (s *Service) evaluateOne(ds *dataset.Dataset, ranks []float64) (Result, error) {
	result := Result{
		Name:   ds.Name,
		Source: ds.Source,
		Digest: ds.Digest,
		Count:  len(ds.Samples),
	}

	var key string
	if s.cache != nil {
		key = cache.Key(ds.Samples, ds.Weights, ds.Sorter, ranks, s.summary)
		if cached, ok := s.cache.Get(key); ok && len(cached.Values) == len(ranks) {
			result.Values = slices.Clone(cached.Values)
			result.Summary = cloneSummary(cached.Summary)
			result.Cached = true
			result.Kept, result.TotalWeight = mass(ds)
			return result, nil
		}
	}

	values, err := stats.WeightedPercentiles(ds.Samples, ranks, ds.Weights, ds.Sorter)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	result.Values = values
	result.Kept, result.TotalWeight = mass(ds)

	if s.summary {
		summary, err := stats.Summarize(ds.Samples, ds.Weights)
		if err != nil {
			result.Error = err.Error()
			return result, err
		}
		result.Summary = &summary
	}

	if key != "" {
		s.cache.Set(key, CachedResult{
			Values:  slices.Clone(result.Values),
			Summary: cloneSummary(result.Summary),
		})
	}
	return result, nil
}

func cloneSummary(s *stats.Summary) *stats.Summary {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// mass counts the samples with positive weight and their total weight.
func mass(ds *dataset.Dataset) (int, float64) {
	if ds.Weights == nil {
		return len(ds.Samples), float64(len(ds.Samples))
	}
	kept, total := 0, 0.0
	for _, w := range ds.Weights {
		if w > 0 {
			kept++
			total += w
		}
	}
	return kept, total
}

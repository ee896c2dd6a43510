// Package backend selects the feature, registration, capture and display
// implementations a run uses.
package backend

import (
	"errors"
	"fmt"
	"log/slog"

	"panofuse/internal/capture"
	"panofuse/internal/config"
	"panofuse/internal/features"
	"panofuse/internal/geometry"
	"panofuse/internal/logging"
	"panofuse/internal/sink"
	"panofuse/internal/stitch"
)

// ErrUnsupportedEnvironment is returned when a requested backend is missing
// from this build or host.
var ErrUnsupportedEnvironment = errors.New("unsupported environment")

// Auto picks the first available registered implementation.
const Auto = "auto"

// ExtractorFactory builds an extractor capped at maxFeatures (0 = unlimited).
type ExtractorFactory func(maxFeatures int) features.Extractor

// EstimatorFactory builds a homography estimator.
type EstimatorFactory func(cfg config.Registration) geometry.HomographyEstimator

// DisplayFactory opens an interactive preview window.
type DisplayFactory func(title string) (sink.Sink, error)

type extractorEntry struct {
	factory   ExtractorFactory
	available bool
}

// Registry holds named implementations in registration order.
type Registry struct {
	extractors     map[string]extractorEntry
	extractorOrder []string
	matchers       map[string]features.Matcher
	matcherOrder   []string
	estimators     map[string]EstimatorFactory
	estimatorOrder []string
	openers        []capture.Opener
	display        DisplayFactory
	kernels        map[string]stitch.Kernels
	kernelOrder    []string
	log            *slog.Logger
}

// New registers the pure-Go implementations.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		extractors: make(map[string]extractorEntry),
		matchers:   make(map[string]features.Matcher),
		estimators: make(map[string]EstimatorFactory),
		kernels:    make(map[string]stitch.Kernels),
		log:        log,
	}
	r.RegisterExtractor("harris", true, func(n int) features.Extractor { return &features.Harris{MaxFeatures: n} })
	r.RegisterMatcher(features.BruteForce{})
	r.RegisterEstimator("ransac", func(cfg config.Registration) geometry.HomographyEstimator {
		est := geometry.NewRANSAC(cfg.Seed)
		if cfg.MaxIterations > 0 {
			est.MaxIterations = cfg.MaxIterations
		}
		if cfg.Confidence > 0 {
			est.Confidence = cfg.Confidence
		}
		if cfg.MinInliers > 0 {
			est.MinInliers = cfg.MinInliers
		}
		return est
	})
	r.RegisterOpener(capture.SequenceOpener{})
	r.RegisterOpener(capture.FFmpegOpener{})
	r.RegisterKernels(stitch.NativeKernels())
	return r
}

// RegisterExtractor adds or replaces an extractor. Replacing keeps the
// original position.
func (r *Registry) RegisterExtractor(name string, available bool, f ExtractorFactory) {
	if f == nil {
		return
	}
	if _, exists := r.extractors[name]; !exists {
		r.extractorOrder = append(r.extractorOrder, name)
	}
	r.extractors[name] = extractorEntry{factory: f, available: available}
	logging.LogBackendStatus(r.log, "extractor", name, available)
}

// PreferExtractor moves a registered extractor to the front of the Auto
// selection order.
func (r *Registry) PreferExtractor(name string) {
	if _, ok := r.extractors[name]; !ok {
		return
	}
	r.extractorOrder = prefer(r.extractorOrder, name)
}

// RegisterKernels adds or replaces a set of pixel stages under k.Name.
// Later registrations are preferred for Auto.
func (r *Registry) RegisterKernels(k stitch.Kernels) {
	if k.Name == "" {
		return
	}
	if _, exists := r.kernels[k.Name]; !exists {
		r.kernelOrder = append(r.kernelOrder, k.Name)
	}
	r.kernels[k.Name] = k
	r.kernelOrder = prefer(r.kernelOrder, k.Name)
	logging.LogBackendStatus(r.log, "kernels", k.Name, true)
}

func prefer(order []string, name string) []string {
	out := make([]string, 0, len(order))
	out = append(out, name)
	for _, n := range order {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// RegisterMatcher adds or replaces a matcher.
func (r *Registry) RegisterMatcher(m features.Matcher) {
	if m == nil {
		return
	}
	if _, exists := r.matchers[m.Name()]; !exists {
		r.matcherOrder = append(r.matcherOrder, m.Name())
	}
	r.matchers[m.Name()] = m
	logging.LogBackendStatus(r.log, "matcher", m.Name(), true)
}

// RegisterEstimator adds or replaces an estimator.
func (r *Registry) RegisterEstimator(name string, f EstimatorFactory) {
	if f == nil {
		return
	}
	if _, exists := r.estimators[name]; !exists {
		r.estimatorOrder = append(r.estimatorOrder, name)
	}
	r.estimators[name] = f
	logging.LogBackendStatus(r.log, "estimator", name, true)
}

// RegisterOpener prepends o so later registrations take precedence.
func (r *Registry) RegisterOpener(o capture.Opener) {
	if o == nil {
		return
	}
	r.openers = append([]capture.Opener{o}, r.openers...)
	logging.LogBackendStatus(r.log, "capture", o.Name(), o.IsAvailable())
}

// RegisterDisplay installs the interactive preview window.
func (r *Registry) RegisterDisplay(f DisplayFactory) {
	r.display = f
	logging.LogBackendStatus(r.log, "display", "window", f != nil)
}

// Extractor returns the named extractor, or the first available for Auto or "".
func (r *Registry) Extractor(name string, maxFeatures int) (features.Extractor, error) {
	if name == "" || name == Auto {
		for _, n := range r.extractorOrder {
			if e := r.extractors[n]; e.available {
				return e.factory(maxFeatures), nil
			}
		}
		return nil, fmt.Errorf("%w: no feature extractor available", ErrUnsupportedEnvironment)
	}
	e, ok := r.extractors[name]
	if !ok || !e.available {
		return nil, fmt.Errorf("%w: feature extractor %q", ErrUnsupportedEnvironment, name)
	}
	return e.factory(maxFeatures), nil
}

// Matcher returns the named matcher, or the first registered for Auto or "".
func (r *Registry) Matcher(name string) (features.Matcher, error) {
	if name == "" || name == Auto {
		if len(r.matcherOrder) == 0 {
			return nil, fmt.Errorf("%w: no matcher registered", ErrUnsupportedEnvironment)
		}
		return r.matchers[r.matcherOrder[0]], nil
	}
	m, ok := r.matchers[name]
	if !ok {
		return nil, fmt.Errorf("%w: matcher %q", ErrUnsupportedEnvironment, name)
	}
	return m, nil
}

// Estimator builds the configured homography estimator.
func (r *Registry) Estimator(cfg config.Registration) (geometry.HomographyEstimator, error) {
	name := cfg.Estimator
	if name == "" || name == Auto {
		if len(r.estimatorOrder) == 0 {
			return nil, fmt.Errorf("%w: no estimator registered", ErrUnsupportedEnvironment)
		}
		name = r.estimatorOrder[0]
	}
	f, ok := r.estimators[name]
	if !ok {
		return nil, fmt.Errorf("%w: estimator %q", ErrUnsupportedEnvironment, name)
	}
	return f(cfg), nil
}

// Kernels returns the named pixel stages, or the preferred set for Auto or "".
func (r *Registry) Kernels(name string) (stitch.Kernels, error) {
	if name == "" || name == Auto {
		if len(r.kernelOrder) == 0 {
			return stitch.Kernels{}, fmt.Errorf("%w: no kernels registered", ErrUnsupportedEnvironment)
		}
		name = r.kernelOrder[0]
	}
	k, ok := r.kernels[name]
	if !ok {
		return stitch.Kernels{}, fmt.Errorf("%w: kernels %q", ErrUnsupportedEnvironment, name)
	}
	return k, nil
}

// Open opens path with the first available opener that accepts it.
func (r *Registry) Open(path string) (capture.Source, error) {
	for _, o := range r.openers {
		if !o.IsAvailable() || !o.CanOpen(path) {
			continue
		}
		r.log.Debug("opening capture source", "path", path, "opener", o.Name())
		return o.Open(path)
	}
	return nil, fmt.Errorf("%w: no capture backend for %s", ErrUnsupportedEnvironment, path)
}

// Display opens a preview window.
func (r *Registry) Display(title string) (sink.Sink, error) {
	if r.display == nil {
		return nil, fmt.Errorf("%w: display requires a build with -tags withcv", ErrUnsupportedEnvironment)
	}
	return r.display(title)
}

// Names lists registered implementations by kind, in selection order.
func (r *Registry) Names() map[string][]string {
	openers := make([]string, 0, len(r.openers))
	for _, o := range r.openers {
		if o.IsAvailable() {
			openers = append(openers, o.Name())
		}
	}
	var extractors []string
	for _, n := range r.extractorOrder {
		if r.extractors[n].available {
			extractors = append(extractors, n)
		}
	}
	return map[string][]string{
		"extractor": extractors,
		"matcher":   append([]string(nil), r.matcherOrder...),
		"estimator": append([]string(nil), r.estimatorOrder...),
		"capture":   openers,
		"kernels":   append([]string(nil), r.kernelOrder...),
	}
}

// HasDisplay reports whether a preview window can be opened.
func (r *Registry) HasDisplay() bool { return r.display != nil }

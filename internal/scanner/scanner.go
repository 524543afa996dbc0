package scanner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/junjiewwang/classgraph/internal/classfile"
	"github.com/junjiewwang/classgraph/internal/discovery"
	"github.com/junjiewwang/classgraph/internal/linker"
	"github.com/junjiewwang/classgraph/pkg/collections"
	appErrors "github.com/junjiewwang/classgraph/pkg/errors"
	"github.com/junjiewwang/classgraph/pkg/filter"
	"github.com/junjiewwang/classgraph/pkg/utils"
)

var tracer = otel.Tracer("github.com/junjiewwang/classgraph/internal/scanner")

// Session runs one scan: concurrent parsing of an initial set of classpath
// resources, extended upwards through external-class discovery, folded
// serially into a Graph.
type Session struct {
	Elements    []discovery.ClasspathElement
	Spec        *classfile.ScanSpec
	Concurrency int
	Logger      utils.Logger

	// ExternalClassFilter, when set, excludes JDK and framework-internal
	// class names from "extend scanning upwards" discovery. Nil means
	// follow every reference, matching the core spec's default behavior.
	ExternalClassFilter *filter.ClassFilter

	// Clock overrides the wall clock used to time scan phases. Nil means
	// the real clock; tests substitute a utils.MockClock for deterministic
	// phase durations.
	Clock utils.Clock

	graph     *linker.Graph
	scheduled *collections.ScheduledSet
	queue     *WorkQueue
	errsMu    sync.Mutex
	errs      []error
}

func (s *Session) addErr(err error) {
	s.errsMu.Lock()
	s.errs = append(s.errs, err)
	s.errsMu.Unlock()
}

// NewSession creates a Session over the given ordered classpath elements.
func NewSession(elements []discovery.ClasspathElement, spec *classfile.ScanSpec, concurrency int, log utils.Logger) *Session {
	if log == nil {
		log = utils.GetGlobalLogger()
	}
	return &Session{
		Elements:    elements,
		Spec:        spec,
		Concurrency: concurrency,
		Logger:      log,
		graph:       linker.NewGraph(),
		scheduled:   collections.NewScheduledSet(16),
		queue:       NewWorkQueue(256),
	}
}

// Result is the linked graph plus any non-fatal per-classfile problems
// encountered along the way.
type Result struct {
	Graph  *linker.Graph
	Errors []error
}

// Scan parses every resource named by seedPaths on every element in order,
// extends scanning upwards when the spec enables it, and links every
// successfully parsed classfile into a graph.
func (s *Session) Scan(ctx context.Context, seedPaths []string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "scan classpath element", trace.WithAttributes(
		attribute.Int("seed_paths", len(seedPaths)),
		attribute.Int("classpath_elements", len(s.Elements)),
	))
	defer span.End()

	timerOpts := []utils.TimerOption{utils.WithLogger(s.Logger)}
	if s.Clock != nil {
		timerOpts = append(timerOpts, utils.WithClock(s.Clock))
	}
	phases := utils.NewTimer("scan", timerOpts...)
	defer phases.PrintSummary()

	resolveSeeds := phases.Start("resolve seeds")
	for _, elem := range s.Elements {
		for _, path := range seedPaths {
			res, ok, err := elem.GetResource(ctx, path)
			if err != nil {
				resolveSeeds.Stop()
				return nil, fmt.Errorf("resolving seed %q on %s: %w", path, elem, err)
			}
			if !ok {
				continue
			}
			// scheduled is keyed by dotted class name, as discovery uses it.
			s.scheduled.InsertIfAbsent(strings.ReplaceAll(strings.TrimSuffix(path, ".class"), "/", "."))
			s.queue.Add(discovery.WorkUnit{Element: elem, Resource: res, RelativePath: path, IsExternal: false})
		}
	}
	resolveSeeds.Stop()

	drainQueue := phases.Start("drain queue")
	s.queue.Run(ctx, s.Concurrency, s.handleUnit)
	drainQueue.Stop()

	span.SetAttributes(
		attribute.Int("classes_linked", len(s.graph.Classes)),
		attribute.Int("errors", len(s.errs)),
	)

	return &Result{Graph: s.graph, Errors: s.errs}, nil
}

func (s *Session) handleUnit(ctx context.Context, unit discovery.WorkUnit) {
	ctx, span := tracer.Start(ctx, "parse classfile", trace.WithAttributes(
		attribute.String("path", unit.RelativePath),
		attribute.Bool("external", unit.IsExternal),
	))
	defer span.End()

	buf, err := unit.Resource.Open(ctx)
	if err != nil {
		span.RecordError(err)
		s.addErr(appErrors.Wrap(appErrors.CodeStorageError, "reading "+unit.RelativePath, err))
		return
	}

	outcome := classfile.ParseClassfile(buf, unit.RelativePath, unit.IsExternal, s.Spec)
	switch outcome.Kind {
	case classfile.OutcomeSkip:
		skipErr := appErrors.NewSkipClassError(unit.RelativePath, outcome.SkipReason)
		s.Logger.Debug("%v", skipErr)
		return
	case classfile.OutcomeError:
		s.Logger.Warn("malformed classfile %s: %v", unit.RelativePath, outcome.Err)
		s.addErr(appErrors.NewClassfileFormatError(unit.RelativePath, outcome.Err))
		return
	}

	record := outcome.Record
	if record.ModuleName != "" {
		unit.Element.SetModuleName(record.ModuleName)
	}

	s.link(ctx, record, unit.Element.ModuleRef())

	if s.Spec.ExtendScanningUpwardsToExternalClasses {
		discoverExternalClasses(ctx, record, unit.Element, s.Elements, s.scheduled, s.queue, s.Logger, s.ExternalClassFilter)
	}
}

// link folds record into the session's graph under its own span, separate
// from "parse classfile" so the time spent serialized behind Graph's
// single-writer lock is visible on its own.
func (s *Session) link(ctx context.Context, record *classfile.ParsedClass, moduleRef *discovery.ModuleRef) {
	_, span := tracer.Start(ctx, "link classfile", trace.WithAttributes(
		attribute.String("class", record.ClassName),
	))
	defer span.End()

	s.graph.Link(record, moduleRef)
}

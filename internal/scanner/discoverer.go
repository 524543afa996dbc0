package scanner

import (
	"context"
	"strings"

	"github.com/junjiewwang/classgraph/internal/classfile"
	"github.com/junjiewwang/classgraph/internal/discovery"
	"github.com/junjiewwang/classgraph/pkg/collections"
	"github.com/junjiewwang/classgraph/pkg/filter"
	"github.com/junjiewwang/classgraph/pkg/utils"
)

// discoverExternalClasses walks a parsed record's superclass, interfaces,
// and annotations, schedules every not-yet-seen name in scheduled, and
// enqueues a work unit for the first classpath element (search order:
// fromElement first, then the rest) that actually has the resource.
func discoverExternalClasses(
	ctx context.Context,
	record *classfile.ParsedClass,
	fromElement discovery.ClasspathElement,
	elements []discovery.ClasspathElement,
	scheduled *collections.ScheduledSet,
	queue *WorkQueue,
	log utils.Logger,
	classFilter *filter.ClassFilter,
) {
	for _, name := range candidateExternalNames(record) {
		if name == "" || name == "java.lang.Object" {
			continue
		}
		if classFilter != nil && (classFilter.IsJDK(name) || classFilter.IsFramework(name)) {
			continue
		}
		if !scheduled.InsertIfAbsent(name) {
			continue
		}

		relativePath := strings.ReplaceAll(name, ".", "/") + ".class"
		if unit, ok := findResource(ctx, relativePath, fromElement, elements); ok {
			queue.Add(unit)
		} else {
			log.Debug("external class not found on classpath: %s", name)
		}
	}
}

func findResource(ctx context.Context, relativePath string, first discovery.ClasspathElement, rest []discovery.ClasspathElement) (discovery.WorkUnit, bool) {
	if res, ok, err := first.GetResource(ctx, relativePath); err == nil && ok {
		return discovery.WorkUnit{Element: first, Resource: res, RelativePath: relativePath, IsExternal: true}, true
	}
	for _, elem := range rest {
		if elem == first {
			continue
		}
		if res, ok, err := elem.GetResource(ctx, relativePath); err == nil && ok {
			return discovery.WorkUnit{Element: elem, Resource: res, RelativePath: relativePath, IsExternal: true}, true
		}
	}
	return discovery.WorkUnit{}, false
}

func candidateExternalNames(record *classfile.ParsedClass) []string {
	names := make([]string, 0, 8)
	if record.SuperclassName != "" {
		names = append(names, record.SuperclassName)
	}
	names = append(names, record.InterfaceNames...)
	names = append(names, annotationClassNames(record.ClassAnnotations)...)
	for _, f := range record.Fields {
		names = append(names, annotationClassNames(f.Annotations)...)
	}
	for _, m := range record.Methods {
		names = append(names, annotationClassNames(m.Annotations)...)
		for _, pa := range m.ParamAnnotations {
			names = append(names, annotationClassNames(pa.Annotations)...)
		}
	}
	return names
}

func annotationClassNames(anns []classfile.AnnotationInfo) []string {
	names := make([]string, 0, len(anns))
	for _, a := range anns {
		names = append(names, a.ClassName)
	}
	return names
}

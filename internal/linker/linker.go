// Package linker merges parsed classfile records into a shared graph of
// classes, packages, and modules. Linking is single-writer: Link holds the
// graph's lock for its whole run, so concurrent callers (see internal/scanner)
// are serialized.
package linker

import (
	"strings"
	"sync"

	"github.com/junjiewwang/classgraph/internal/classfile"
	"github.com/junjiewwang/classgraph/internal/discovery"
)

// ClassInfo aggregates every classfile's contribution to one class name.
type ClassInfo struct {
	Name                string
	IsExternal          bool
	Modifiers           uint16
	IsInterface         bool
	IsAnnotation        bool
	Superclass          *ClassInfo
	Interfaces          []*ClassInfo
	Annotations         []classfile.AnnotationInfo
	AnnotationDefaults  []classfile.AnnotationDefaultValue
	ClassSignature      string
	EnclosingMethodName string
	Fields              []classfile.FieldInfo
	Methods             []classfile.MethodInfo
	ReferencedClasses   map[string]*ClassInfo
	Containment         []classfile.ContainmentEdge
	Package             *PackageInfo
	Module              *ModuleInfo
}

// PackageInfo aggregates annotations and membership for one Java package.
type PackageInfo struct {
	Name        string
	Annotations []classfile.AnnotationInfo
	Classes     map[string]*ClassInfo
	Module      *ModuleInfo
}

// ModuleInfo aggregates annotations and membership for one Java module.
type ModuleInfo struct {
	Name        string
	Annotations []classfile.AnnotationInfo
	Classes     map[string]*ClassInfo
	Packages    map[string]*PackageInfo
}

// Graph is the full set of linked classes, packages, and modules produced
// by a scan session. Link calls are serialized by mu; reading the maps while
// Link may still be running is not safe.
type Graph struct {
	mu       sync.Mutex
	Classes  map[string]*ClassInfo
	Packages map[string]*PackageInfo
	Modules  map[string]*ModuleInfo
}

// NewGraph creates an empty linked graph.
func NewGraph() *Graph {
	return &Graph{
		Classes:  make(map[string]*ClassInfo),
		Packages: make(map[string]*PackageInfo),
		Modules:  make(map[string]*ModuleInfo),
	}
}

func (g *Graph) getOrCreateClass(name string) *ClassInfo {
	if ci, ok := g.Classes[name]; ok {
		return ci
	}
	ci := &ClassInfo{Name: name, IsExternal: true, ReferencedClasses: make(map[string]*ClassInfo)}
	g.Classes[name] = ci
	return ci
}

func (g *Graph) getOrCreatePackage(name string) *PackageInfo {
	if pi, ok := g.Packages[name]; ok {
		return pi
	}
	pi := &PackageInfo{Name: name, Classes: make(map[string]*ClassInfo)}
	g.Packages[name] = pi
	return pi
}

func (g *Graph) getOrCreateModule(name string) *ModuleInfo {
	if mi, ok := g.Modules[name]; ok {
		return mi
	}
	mi := &ModuleInfo{Name: name, Classes: make(map[string]*ClassInfo), Packages: make(map[string]*PackageInfo)}
	g.Modules[name] = mi
	return mi
}

// Link folds one parsed classfile record into the graph. moduleRef, if
// non-nil, is the classpath element's out-of-band module reference and
// takes priority over the module name recorded from module-info.class
// itself. It is the only mutator of Graph's maps and holds the graph's lock
// while it runs, so concurrent calls to Link are serialized.
func (g *Graph) Link(record *classfile.ParsedClass, moduleRef *discovery.ModuleRef) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case record.IsModuleInfo():
		g.linkModuleInfo(record, moduleRef)
	case record.IsPackageInfo():
		g.linkPackageInfo(record)
	default:
		g.linkClass(record)
	}
}

func (g *Graph) linkModuleInfo(record *classfile.ParsedClass, moduleRef *discovery.ModuleRef) {
	name := record.ModuleName
	if moduleRef != nil && moduleRef.Name != "" {
		name = moduleRef.Name
	}
	if name == "" {
		return
	}
	mi := g.getOrCreateModule(name)
	mi.Annotations = append(mi.Annotations, record.ClassAnnotations...)
}

func (g *Graph) linkPackageInfo(record *classfile.ParsedClass) {
	pkgName := parentPackage(record.ClassName)
	pi := g.getOrCreatePackage(pkgName)
	pi.Annotations = append(pi.Annotations, record.ClassAnnotations...)
	if record.ModuleName != "" {
		mi := g.getOrCreateModule(record.ModuleName)
		mi.Packages[pkgName] = pi
		pi.Module = mi
	}
}

func (g *Graph) linkClass(record *classfile.ParsedClass) {
	ci := g.getOrCreateClass(record.ClassName)

	// A class once seen as scanned (non-external) never reverts to external,
	// even if a later external-discovery pass re-encounters it by reference.
	if !record.IsExternal {
		ci.IsExternal = false
	}

	ci.Modifiers = record.Modifiers
	ci.IsInterface = record.IsInterface
	ci.IsAnnotation = record.IsAnnotation
	ci.ClassSignature = record.ClassSignature
	ci.EnclosingMethodName = record.EnclosingMethodName
	ci.Annotations = append(ci.Annotations, record.ClassAnnotations...)
	ci.AnnotationDefaults = append(ci.AnnotationDefaults, record.AnnotationDefaults...)
	ci.Fields = append(ci.Fields, record.Fields...)
	ci.Methods = append(ci.Methods, record.Methods...)
	ci.Containment = append(ci.Containment, record.Containment...)

	if record.SuperclassName != "" {
		ci.Superclass = g.getOrCreateClass(record.SuperclassName)
	}
	for _, ifaceName := range record.InterfaceNames {
		ci.Interfaces = append(ci.Interfaces, g.getOrCreateClass(ifaceName))
	}
	for refName := range record.ReferencedClassNames {
		if refName == record.ClassName {
			continue
		}
		ci.ReferencedClasses[refName] = g.getOrCreateClass(refName)
	}

	pkgName := parentPackage(record.ClassName)
	pi := g.getOrCreatePackage(pkgName)
	pi.Classes[record.ClassName] = ci
	ci.Package = pi

	if record.ModuleName != "" {
		mi := g.getOrCreateModule(record.ModuleName)
		mi.Classes[record.ClassName] = ci
		mi.Packages[pkgName] = pi
		ci.Module = mi
		pi.Module = mi
	}
}

// GetOuter returns the outer class name for inner, if any containment edge
// recorded one.
func (ci *ClassInfo) GetOuter() string {
	for _, edge := range ci.Containment {
		if edge.Inner == ci.Name {
			return edge.Outer
		}
	}
	return ""
}

// GetInners returns every class name this class is recorded as the outer
// class of.
func (ci *ClassInfo) GetInners() []string {
	var inners []string
	for _, edge := range ci.Containment {
		if edge.Outer == ci.Name {
			inners = append(inners, edge.Inner)
		}
	}
	return inners
}

func parentPackage(className string) string {
	idx := strings.LastIndexByte(className, '.')
	if idx < 0 {
		return ""
	}
	return className[:idx]
}

// Package discovery resolves class names to classfile resources across an
// ordered list of classpath elements, and implements the "extend scanning
// upwards" algorithm that schedules newly referenced external classes for
// parsing. Archive (jar/zip) traversal is explicitly never implemented —
// each element is either a local directory tree or a pre-fetched object
// storage cache.
package discovery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/junjiewwang/classgraph/internal/storage"
)

// ModuleRef names a module out of band, without needing to parse the
// module's module-info.class first. A classpath element or resource backed
// by a jar's module descriptor or an Automatic-Module-Name manifest entry
// would populate one; linking prefers it over the module name recorded by
// parsing module-info.class itself (see Graph.Link).
type ModuleRef struct {
	Name string
}

// Resource is an open handle to one classfile's bytes.
type Resource interface {
	// Open returns the full contents of the resource.
	Open(ctx context.Context) ([]byte, error)
	// Path is the resource's classpath-relative path, e.g. "a/B.class".
	Path() string
	// ModuleRef returns this resource's out-of-band module reference, if
	// its backing element can supply one without parsing module-info.class.
	ModuleRef() *ModuleRef
}

// ClasspathElement is one source of classfiles to scan: a directory tree or
// an object-storage-backed cache. It never unpacks jar/zip archives.
type ClasspathElement interface {
	// GetResource returns the resource at relativePath, or (nil, false) if
	// this element does not contain it.
	GetResource(ctx context.Context, relativePath string) (Resource, bool, error)
	// ModuleName is mutated by the parser when a Module attribute names
	// this element's module (module-info.class is scanned like any other
	// class, but the module name belongs to the classpath element, not to
	// any one class).
	ModuleName() string
	SetModuleName(name string)
	// ModuleRef returns the element's out-of-band module reference, if any.
	// Neither concrete element below ever parses a jar module descriptor or
	// manifest, so both always return nil; the accessor exists so a future
	// archive-backed element can populate one without changing this
	// interface.
	ModuleRef() *ModuleRef
	// String identifies the element for logging.
	String() string
}

// WorkUnit is one classfile queued for parsing: which element it came from,
// the resource to read, and whether it was reached only via reference
// discovery rather than the originally requested scan scope.
type WorkUnit struct {
	Element      ClasspathElement
	Resource     Resource
	RelativePath string
	IsExternal   bool
}

// --- Local directory classpath element -------------------------------------

// LocalElement is a classpath element backed by a directory tree on disk.
type LocalElement struct {
	root       string
	moduleName string
}

// NewLocalElement creates a LocalElement rooted at root.
func NewLocalElement(root string) *LocalElement {
	return &LocalElement{root: root}
}

func (e *LocalElement) GetResource(_ context.Context, relativePath string) (Resource, bool, error) {
	full := filepath.Join(e.root, relativePath)
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &localResource{fullPath: full, relativePath: relativePath}, true, nil
}

func (e *LocalElement) ModuleName() string        { return e.moduleName }
func (e *LocalElement) SetModuleName(name string) { e.moduleName = name }
func (e *LocalElement) ModuleRef() *ModuleRef     { return nil }
func (e *LocalElement) String() string            { return fmt.Sprintf("local:%s", e.root) }

type localResource struct {
	fullPath     string
	relativePath string
}

func (r *localResource) Open(_ context.Context) ([]byte, error) {
	return os.ReadFile(r.fullPath)
}

func (r *localResource) Path() string          { return r.relativePath }
func (r *localResource) ModuleRef() *ModuleRef { return nil }

// --- Object-storage-cached classpath element --------------------------------

// CachedElement is a classpath element whose classfiles are fetched
// on demand from an object storage backend and kept in a local cache
// directory, never unpacked from an archive — callers are expected to have
// pre-populated the cache key namespace with one object per classfile.
type CachedElement struct {
	store      storage.Storage
	keyPrefix  string
	moduleName string
}

// NewCachedElement creates a CachedElement whose resource keys are
// keyPrefix + relativePath inside store.
func NewCachedElement(store storage.Storage, keyPrefix string) *CachedElement {
	return &CachedElement{store: store, keyPrefix: keyPrefix}
}

func (e *CachedElement) GetResource(ctx context.Context, relativePath string) (Resource, bool, error) {
	key := e.key(relativePath)
	exists, err := e.store.Exists(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	return &cachedResource{store: e.store, key: key, relativePath: relativePath}, true, nil
}

func (e *CachedElement) key(relativePath string) string {
	return strings.TrimSuffix(e.keyPrefix, "/") + "/" + relativePath
}

func (e *CachedElement) ModuleName() string        { return e.moduleName }
func (e *CachedElement) SetModuleName(name string) { e.moduleName = name }
func (e *CachedElement) ModuleRef() *ModuleRef     { return nil }
func (e *CachedElement) String() string            { return fmt.Sprintf("cos:%s", e.keyPrefix) }

type cachedResource struct {
	store        storage.Storage
	key          string
	relativePath string
}

func (r *cachedResource) Open(ctx context.Context) ([]byte, error) {
	rc, err := r.store.Download(ctx, r.key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (r *cachedResource) Path() string          { return r.relativePath }
func (r *cachedResource) ModuleRef() *ModuleRef { return nil }

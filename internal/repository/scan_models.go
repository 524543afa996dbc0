package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/junjiewwang/classgraph/internal/linker"
	"github.com/junjiewwang/classgraph/pkg/compression"
)

// JSONField is a custom type for storing arbitrary JSON payloads in a GORM
// column without a concrete Go struct on the column side.
type JSONField []byte

// Value implements driver.Valuer.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// MarshalJSON implements json.Marshaler.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// ScanSnapshot represents the scan_snapshot table: one row per completed
// scan session, holding the linked class/package/module graph as JSON plus
// a zstd-compressed copy of the same payload for cheap bulk export.
type ScanSnapshot struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SessionUUID    string    `gorm:"column:session_uuid;type:varchar(64);uniqueIndex"`
	ClassCount     int       `gorm:"column:class_count"`
	PackageCount   int       `gorm:"column:package_count"`
	ModuleCount    int       `gorm:"column:module_count"`
	Classes        JSONField `gorm:"column:classes;type:json"`
	Packages       JSONField `gorm:"column:packages;type:json"`
	Modules        JSONField `gorm:"column:modules;type:json"`
	CompressedBlob []byte    `gorm:"column:compressed_blob;type:blob"`
	CreateTime     time.Time `gorm:"column:create_time;autoCreateTime"`
}

// TableName returns the table name for ScanSnapshot.
func (ScanSnapshot) TableName() string {
	return "scan_snapshot"
}

// classSummary is the flattened, JSON-serializable projection of one
// linker.ClassInfo used for persistence — pointer fields in the in-memory
// graph are replaced with plain name references to avoid cyclic encoding.
type classSummary struct {
	Name                string   `json:"name"`
	IsExternal          bool     `json:"is_external"`
	Modifiers           uint16   `json:"modifiers"`
	IsInterface         bool     `json:"is_interface"`
	IsAnnotation        bool     `json:"is_annotation"`
	Superclass          string   `json:"superclass,omitempty"`
	Interfaces          []string `json:"interfaces,omitempty"`
	ReferencedClasses   []string `json:"referenced_classes,omitempty"`
	Package             string   `json:"package,omitempty"`
	Module              string   `json:"module,omitempty"`
	EnclosingMethodName string   `json:"enclosing_method_name,omitempty"`
}

type packageSummary struct {
	Name    string   `json:"name"`
	Classes []string `json:"classes,omitempty"`
	Module  string   `json:"module,omitempty"`
}

type moduleSummary struct {
	Name     string   `json:"name"`
	Packages []string `json:"packages,omitempty"`
}

// NewScanSnapshot projects a linked Graph into a ScanSnapshot row ready to
// Create. The graph is not retained; callers may keep scanning after this
// call returns.
func NewScanSnapshot(sessionUUID string, g *linker.Graph) (*ScanSnapshot, error) {
	classes := make([]classSummary, 0, len(g.Classes))
	for name, ci := range g.Classes {
		cs := classSummary{
			Name:         name,
			IsExternal:   ci.IsExternal,
			Modifiers:    ci.Modifiers,
			IsInterface:  ci.IsInterface,
			IsAnnotation: ci.IsAnnotation,
		}
		if ci.Superclass != nil {
			cs.Superclass = ci.Superclass.Name
		}
		for _, iface := range ci.Interfaces {
			cs.Interfaces = append(cs.Interfaces, iface.Name)
		}
		for refName := range ci.ReferencedClasses {
			cs.ReferencedClasses = append(cs.ReferencedClasses, refName)
		}
		if ci.Package != nil {
			cs.Package = ci.Package.Name
		}
		if ci.Module != nil {
			cs.Module = ci.Module.Name
		}
		cs.EnclosingMethodName = ci.EnclosingMethodName
		classes = append(classes, cs)
	}

	packages := make([]packageSummary, 0, len(g.Packages))
	for name, pi := range g.Packages {
		ps := packageSummary{Name: name}
		for className := range pi.Classes {
			ps.Classes = append(ps.Classes, className)
		}
		if pi.Module != nil {
			ps.Module = pi.Module.Name
		}
		packages = append(packages, ps)
	}

	modules := make([]moduleSummary, 0, len(g.Modules))
	for name, mi := range g.Modules {
		ms := moduleSummary{Name: name}
		for pkgName := range mi.Packages {
			ms.Packages = append(ms.Packages, pkgName)
		}
		modules = append(modules, ms)
	}

	classesJSON, err := json.Marshal(classes)
	if err != nil {
		return nil, err
	}
	packagesJSON, err := json.Marshal(packages)
	if err != nil {
		return nil, err
	}
	modulesJSON, err := json.Marshal(modules)
	if err != nil {
		return nil, err
	}

	full, err := json.Marshal(struct {
		Classes  []classSummary   `json:"classes"`
		Packages []packageSummary `json:"packages"`
		Modules  []moduleSummary  `json:"modules"`
	}{classes, packages, modules})
	if err != nil {
		return nil, err
	}
	zc, err := compression.NewZstdCompressor(compression.LevelDefault)
	if err != nil {
		return nil, err
	}
	compressed, err := zc.Compress(full)
	if err != nil {
		return nil, err
	}

	return &ScanSnapshot{
		SessionUUID:    sessionUUID,
		ClassCount:     len(classes),
		PackageCount:   len(packages),
		ModuleCount:    len(modules),
		Classes:        classesJSON,
		Packages:       packagesJSON,
		Modules:        modulesJSON,
		CompressedBlob: compressed,
	}, nil
}

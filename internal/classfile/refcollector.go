package classfile

import (
	"strings"

	"github.com/junjiewwang/classgraph/internal/typesig"
)

// referenceCollector accumulates constant pool slots that may name a
// dependency class, deferring the actual resolution until after the
// constant pool is fully parsed (slots referenced earlier in the pool can
// point to slots parsed later).
type referenceCollector struct {
	classRefSlots       []int
	nameAndTypeTypeSlots []int
}

func (c *referenceCollector) noteClassRef(slot int) {
	c.classRefSlots = append(c.classRefSlots, slot)
}

func (c *referenceCollector) noteNameAndTypeType(slot int) {
	c.nameAndTypeTypeSlots = append(c.nameAndTypeTypeSlots, slot)
}

// collectReferencedClassNames resolves every noted constant pool slot into
// class names and records them on record. Called once per classfile, after
// the rest of parsing has completed, only when enableInterClassDependencies
// is set.
func (c *referenceCollector) collectReferencedClassNames(cp *ConstantPool, record *ParsedClass) error {
	for _, slot := range c.classRefSlots {
		name, err := cp.GetClassName(slot)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		if strings.HasPrefix(name, "[") {
			if err := collectFromDescriptor(name, record); err != nil {
				return err
			}
			continue
		}
		record.addReferencedClass(name)
	}

	for _, slot := range c.nameAndTypeTypeSlots {
		desc, err := cp.GetNameAndTypeString(slot, 1)
		if err != nil {
			return err
		}
		if desc == "" {
			continue
		}
		if err := collectFromDescriptor(desc, record); err != nil {
			return err
		}
	}
	return nil
}

// collectFromDescriptor classifies desc as a method or field descriptor and
// walks its structure with the generic-signature parser, which also handles
// plain (non-generic) descriptors since its grammar is a superset.
func collectFromDescriptor(desc string, record *ParsedClass) error {
	if strings.Contains(desc, "(") || desc == "<init>" {
		m, err := typesig.ParseMethod(desc)
		if err != nil {
			return err
		}
		m.FindReferencedClassNames(record.ReferencedClassNames)
		return nil
	}
	ts, err := typesig.Parse(toInternalDescriptor(desc))
	if err != nil {
		return err
	}
	ts.FindReferencedClassNames(record.ReferencedClassNames)
	return nil
}

// toInternalDescriptor reverses the constant pool's slash->dot class-name
// normalization for descriptors that were resolved with replaceSlashWithDot
// set, since the signature grammar expects '/'-separated internal names.
func toInternalDescriptor(desc string) string {
	if !strings.Contains(desc, ".") {
		return desc
	}
	b := []byte(desc)
	for i, c := range b {
		if c == '.' {
			b[i] = '/'
		}
	}
	return string(b)
}

package classfile

import (
	"fmt"

	"github.com/junjiewwang/classgraph/pkg/collections"
)

// constant pool scratch arrays are pooled per-tag-width so a worker
// reparsing many classfiles in sequence does not reallocate them each time.
var (
	offsetPool  = collections.NewSlicePool[int32](512)
	tagPool     = collections.NewSlicePool[uint8](512)
	indirectPool = collections.NewSlicePool[int32](512)
)

// ConstantPool holds the parallel offset/tag/indirect arrays described in
// the parsing design: slot i's tag lives in tag[i], its payload's starting
// offset into the classfile buffer lives in offset[i], and indirect
// references (ClassRef, StringRef, Module, Package, NameAndType) store their
// resolved index(es) in indirect[i].
type ConstantPool struct {
	reader   *BufferedReader
	tag      *[]uint8
	offset   *[]int32
	indirect *[]int32
	count    int
}

// Release returns the pool's scratch arrays for reuse by the next classfile
// parsed on this goroutine. Callers must not use the ConstantPool after
// calling Release.
func (cp *ConstantPool) Release() {
	tagPool.Put(cp.tag)
	offsetPool.Put(cp.offset)
	indirectPool.Put(cp.indirect)
}

// parseConstantPool reads the cp_count-prefixed constant_pool table
// starting at the reader's current cursor (JVM Spec 4.4) and leaves the
// cursor positioned just past the last entry.
func parseConstantPool(r *BufferedReader) (*ConstantPool, error) {
	cpCount, err := r.ReadU2()
	if err != nil {
		return nil, fmt.Errorf("reading constant_pool_count: %w", err)
	}

	n := int(cpCount)
	tagSlice := tagPool.Get()
	offsetSlice := offsetPool.Get()
	indirectSlice := indirectPool.Get()
	*tagSlice = growUint8(*tagSlice, n)
	*offsetSlice = growInt32(*offsetSlice, n)
	*indirectSlice = growInt32(*indirectSlice, n)

	cp := &ConstantPool{
		reader:   r,
		tag:      tagSlice,
		offset:   offsetSlice,
		indirect: indirectSlice,
		count:    n,
	}

	for i := 1; i < n; i++ {
		tagByte, err := r.ReadU1()
		if err != nil {
			return nil, fmt.Errorf("reading tag for constant pool entry %d: %w", i, err)
		}
		(*cp.tag)[i] = tagByte
		(*cp.offset)[i] = int32(r.Pos())

		switch tagByte {
		case TagUtf8:
			length, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			if err := r.Skip(int(length)); err != nil {
				return nil, err
			}
		case TagInteger, TagFloat:
			if err := r.Skip(4); err != nil {
				return nil, err
			}
		case TagLong, TagDouble:
			if err := r.Skip(8); err != nil {
				return nil, err
			}
			// A long/double occupies two consecutive constant pool entries;
			// the second slot is never dereferenced (JVM Spec 4.4.5).
			i++
			if i < n {
				(*cp.tag)[i] = 0
			}
		case TagClass, TagString, TagModule, TagPackage:
			idx, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			(*cp.indirect)[i] = int32(idx)
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			if err := r.Skip(4); err != nil {
				return nil, err
			}
		case TagMethodType:
			if err := r.Skip(2); err != nil {
				return nil, err
			}
		case TagNameAndType:
			nameIdx, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			typeIdx, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			(*cp.indirect)[i] = int32(nameIdx)<<16 | int32(typeIdx)
		case TagMethodHandle:
			if err := r.Skip(3); err != nil {
				return nil, err
			}
		case TagInvokeDynamic:
			if err := r.Skip(4); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at entry %d", tagByte, i)
		}
	}

	return cp, nil
}

func growUint8(s []uint8, n int) []uint8 {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]uint8, n)
}

func growInt32(s []int32, n int) []int32 {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]int32, n)
}

// Tag returns the tag byte of constant pool slot i.
func (cp *ConstantPool) Tag(i int) uint8 {
	if i <= 0 || i >= cp.count {
		return 0
	}
	return (*cp.tag)[i]
}

// resolveStringOffset resolves slot i (optionally a NameAndType sub-field,
// 0=name 1=type) down to the buffer offset of its backing UTF8 entry,
// returning 0 for the null sentinel (JVM component design 4.2).
func (cp *ConstantPool) resolveStringOffset(i, subField int) (int, error) {
	if i == 0 {
		return 0, nil
	}
	if i < 0 || i >= cp.count {
		return 0, fmt.Errorf("constant pool index %d out of range", i)
	}
	tag := (*cp.tag)[i]
	if subField != 0 && !(tag == TagNameAndType && subField == 1) {
		return 0, fmt.Errorf("invalid sub-field %d for constant pool slot %d (tag %d)", subField, i, tag)
	}
	switch tag {
	case 0:
		return 0, nil
	case TagUtf8:
		return int((*cp.offset)[i]), nil
	case TagClass, TagString, TagModule, TagPackage:
		target := int((*cp.indirect)[i])
		if target == 0 {
			return 0, nil
		}
		return cp.resolveStringOffset(target, 0)
	case TagNameAndType:
		packed := (*cp.indirect)[i]
		var target int
		if subField == 0 {
			target = int(packed >> 16)
		} else {
			target = int(packed & 0xFFFF)
		}
		if target == 0 {
			return 0, nil
		}
		return cp.resolveStringOffset(target, 0)
	default:
		return 0, fmt.Errorf("constant pool slot %d (tag %d) is not string-resolvable", i, (*cp.tag)[i])
	}
}

// GetString resolves slot i to its decoded string value, optionally
// normalizing a class name ('/' -> '.') or stripping the 'L'...';' wrapper
// of a field descriptor.
func (cp *ConstantPool) GetString(i int, replaceSlashWithDot, stripLSemicolon bool) (string, error) {
	offset, err := cp.resolveStringOffset(i, 0)
	if err != nil {
		return "", err
	}
	if offset == 0 {
		return "", nil
	}
	return cp.reader.ReadString(offset, replaceSlashWithDot, stripLSemicolon)
}

// GetClassName resolves a ClassRef slot to a dotted class name.
func (cp *ConstantPool) GetClassName(i int) (string, error) {
	return cp.GetString(i, true, false)
}

// GetNameAndTypeString resolves a NameAndType sub-field (0=name, 1=type).
func (cp *ConstantPool) GetNameAndTypeString(i, subField int) (string, error) {
	offset, err := cp.resolveStringOffset(i, subField)
	if err != nil {
		return "", err
	}
	if offset == 0 {
		return "", nil
	}
	return cp.reader.ReadString(offset, false, false)
}

// EqualsUTF8Literal reports whether slot i's UTF8 bytes equal literal,
// without allocating a string — used for attribute-name dispatch, which is
// always ASCII (JVM Spec 4.7).
func (cp *ConstantPool) EqualsUTF8Literal(i int, literal string) bool {
	if i <= 0 || i >= cp.count || (*cp.tag)[i] != TagUtf8 {
		return false
	}
	offset := int((*cp.offset)[i])
	length, err := cp.reader.readUnsignedShortAt(offset)
	if err != nil || int(length) != len(literal) {
		return false
	}
	start := offset + 2
	for k := 0; k < len(literal); k++ {
		if cp.reader.buf[start+k] != literal[k] {
			return false
		}
	}
	return true
}

package classfile

import (
	"fmt"
	"math"
)

// readAnnotation decodes one `annotation` structure (JVM Spec 4.7.16).
func readAnnotation(r *BufferedReader, cp *ConstantPool) (AnnotationInfo, error) {
	typeIdx, err := r.ReadU2()
	if err != nil {
		return AnnotationInfo{}, err
	}
	className, err := cp.GetString(int(typeIdx), true, true)
	if err != nil {
		return AnnotationInfo{}, err
	}

	pairCount, err := r.ReadU2()
	if err != nil {
		return AnnotationInfo{}, err
	}

	ann := AnnotationInfo{ClassName: className, Params: make([]AnnotationParam, 0, pairCount)}
	for i := 0; i < int(pairCount); i++ {
		nameIdx, err := r.ReadU2()
		if err != nil {
			return AnnotationInfo{}, err
		}
		name, err := cp.GetString(int(nameIdx), false, false)
		if err != nil {
			return AnnotationInfo{}, err
		}
		value, err := readElementValue(r, cp)
		if err != nil {
			return AnnotationInfo{}, err
		}
		ann.Params = append(ann.Params, AnnotationParam{Name: name, Value: value})
	}
	return ann, nil
}

// readElementValue decodes one `element_value` structure (JVM Spec 4.7.16.1).
func readElementValue(r *BufferedReader, cp *ConstantPool) (AnnotationValue, error) {
	tag, err := r.ReadU1()
	if err != nil {
		return AnnotationValue{}, err
	}

	switch tag {
	case 'B', 'C', 'S', 'I', 'Z':
		idx, err := r.ReadU2()
		if err != nil {
			return AnnotationValue{}, err
		}
		iv, err := cp.getIntegerConstant(int(idx))
		if err != nil {
			return AnnotationValue{}, err
		}
		return AnnotationValue{Kind: AnnotationValueConst, Const: narrowInt(tag, iv)}, nil
	case 'J':
		idx, err := r.ReadU2()
		if err != nil {
			return AnnotationValue{}, err
		}
		lv, err := cp.getLongConstant(int(idx))
		if err != nil {
			return AnnotationValue{}, err
		}
		return AnnotationValue{Kind: AnnotationValueConst, Const: lv}, nil
	case 'F':
		idx, err := r.ReadU2()
		if err != nil {
			return AnnotationValue{}, err
		}
		iv, err := cp.getIntegerConstant(int(idx))
		if err != nil {
			return AnnotationValue{}, err
		}
		return AnnotationValue{Kind: AnnotationValueConst, Const: math.Float32frombits(uint32(iv))}, nil
	case 'D':
		idx, err := r.ReadU2()
		if err != nil {
			return AnnotationValue{}, err
		}
		lv, err := cp.getLongConstant(int(idx))
		if err != nil {
			return AnnotationValue{}, err
		}
		return AnnotationValue{Kind: AnnotationValueConst, Const: math.Float64frombits(uint64(lv))}, nil
	case 's':
		idx, err := r.ReadU2()
		if err != nil {
			return AnnotationValue{}, err
		}
		sv, err := cp.GetString(int(idx), false, false)
		if err != nil {
			return AnnotationValue{}, err
		}
		return AnnotationValue{Kind: AnnotationValueConst, Const: sv}, nil
	case 'e':
		typeIdx, err := r.ReadU2()
		if err != nil {
			return AnnotationValue{}, err
		}
		constIdx, err := r.ReadU2()
		if err != nil {
			return AnnotationValue{}, err
		}
		typeDesc, err := cp.GetString(int(typeIdx), true, true)
		if err != nil {
			return AnnotationValue{}, err
		}
		constName, err := cp.GetString(int(constIdx), false, false)
		if err != nil {
			return AnnotationValue{}, err
		}
		return AnnotationValue{Kind: AnnotationValueEnum, EnumClassDesc: typeDesc, EnumConstName: constName}, nil
	case 'c':
		idx, err := r.ReadU2()
		if err != nil {
			return AnnotationValue{}, err
		}
		desc, err := cp.GetString(int(idx), true, false)
		if err != nil {
			return AnnotationValue{}, err
		}
		return AnnotationValue{Kind: AnnotationValueClass, ClassDesc: desc}, nil
	case '@':
		nested, err := readAnnotation(r, cp)
		if err != nil {
			return AnnotationValue{}, err
		}
		return AnnotationValue{Kind: AnnotationValueNested, Nested: &nested}, nil
	case '[':
		count, err := r.ReadU2()
		if err != nil {
			return AnnotationValue{}, err
		}
		values := make([]AnnotationValue, 0, count)
		for i := 0; i < int(count); i++ {
			v, err := readElementValue(r, cp)
			if err != nil {
				return AnnotationValue{}, err
			}
			values = append(values, v)
		}
		return AnnotationValue{Kind: AnnotationValueArray, Array: values}, nil
	default:
		return AnnotationValue{}, fmt.Errorf("unknown element_value tag 0x%02x", tag)
	}
}

func narrowInt(tag uint8, v int32) interface{} {
	switch tag {
	case 'B':
		return int8(v)
	case 'C':
		return uint16(v)
	case 'S':
		return int16(v)
	case 'Z':
		return v != 0
	default: // 'I'
		return v
	}
}

func (cp *ConstantPool) getIntegerConstant(i int) (int32, error) {
	if i <= 0 || i >= cp.count || (cp.Tag(i) != TagInteger && cp.Tag(i) != TagFloat) {
		return 0, fmt.Errorf("constant pool index %d is not an Integer/Float constant", i)
	}
	offset := int((*cp.offset)[i])
	bits, err := cp.reader.readU4At(offset)
	if err != nil {
		return 0, err
	}
	return int32(bits), nil
}

func (cp *ConstantPool) getLongConstant(i int) (int64, error) {
	if i <= 0 || i >= cp.count || (cp.Tag(i) != TagLong && cp.Tag(i) != TagDouble) {
		return 0, fmt.Errorf("constant pool index %d is not a Long/Double constant", i)
	}
	offset := int((*cp.offset)[i])
	hi, err := cp.reader.readU4At(offset)
	if err != nil {
		return 0, err
	}
	lo, err := cp.reader.readU4At(offset + 4)
	if err != nil {
		return 0, err
	}
	return int64(uint64(hi)<<32 | uint64(lo)), nil
}

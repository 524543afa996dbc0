package classfile

import (
	"fmt"
	"math"
	"strings"
)

// ScanSpec is the set of policy flags that control how much of a classfile
// is retained. It mirrors the boolean knobs of a real scan configuration:
// most default to false (minimal retention) except where noted.
type ScanSpec struct {
	IgnoreClassVisibility                         bool
	IgnoreFieldVisibility                         bool
	IgnoreMethodVisibility                        bool
	EnableFieldInfo                               bool
	EnableMethodInfo                              bool
	EnableAnnotationInfo                          bool
	DisableRuntimeInvisibleAnnotations            bool
	EnableStaticFinalFieldConstantInitializerValues bool
	EnableInterClassDependencies                  bool
	ExtendScanningUpwardsToExternalClasses         bool
}

// ParseClassfile decodes one classfile's bytes into a ParseOutcome.
// relativePath is the resource path the bytes were read from (e.g.
// "com/example/Foo.class"), used both for the name/path consistency check
// and for diagnostics. isExternal marks whether this classfile was reached
// only via reference discovery rather than being part of the requested scan
// scope.
func ParseClassfile(buf []byte, relativePath string, isExternal bool, spec *ScanSpec) ParseOutcome {
	r := NewBufferedReader(buf)

	magic, err := r.ReadU4()
	if err != nil {
		return failure(fmt.Errorf("%s: %w", relativePath, err))
	}
	if magic != classMagic {
		return failure(fmt.Errorf("%s: bad magic 0x%08X", relativePath, magic))
	}

	if _, err := r.ReadU2(); err != nil { // minor version, discarded
		return failure(fmt.Errorf("%s: %w", relativePath, err))
	}
	if _, err := r.ReadU2(); err != nil { // major version, discarded
		return failure(fmt.Errorf("%s: %w", relativePath, err))
	}

	cp, err := parseConstantPool(r)
	if err != nil {
		return failure(fmt.Errorf("%s: %w", relativePath, err))
	}
	defer cp.Release()

	var refs referenceCollector
	if spec.EnableInterClassDependencies {
		noteClassRefsAndTypes(cp, &refs)
	}

	record := newParsedClass()
	record.IsExternal = isExternal

	outcome := parseBasicInfo(r, cp, record, relativePath, spec)
	if outcome.Kind != OutcomeDone {
		return outcome
	}

	if err := parseInterfaces(r, cp, record); err != nil {
		return failure(fmt.Errorf("%s: %w", relativePath, err))
	}

	if err := parseFields(r, cp, record, spec); err != nil {
		return failure(fmt.Errorf("%s: %w", relativePath, err))
	}

	if err := parseMethods(r, cp, record, spec); err != nil {
		return failure(fmt.Errorf("%s: %w", relativePath, err))
	}

	if err := parseClassAttributes(r, cp, record, spec); err != nil {
		return failure(fmt.Errorf("%s: %w", relativePath, err))
	}

	if spec.EnableInterClassDependencies {
		if err := refs.collectReferencedClassNames(cp, record); err != nil {
			return failure(fmt.Errorf("%s: %w", relativePath, err))
		}
	}

	return done(record)
}

// noteClassRefsAndTypes walks the already-parsed constant pool once,
// recording every ClassRef and NameAndType slot for later resolution by the
// reference collector.
func noteClassRefsAndTypes(cp *ConstantPool, refs *referenceCollector) {
	for i := 1; i < cp.count; i++ {
		switch (*cp.tag)[i] {
		case TagClass:
			refs.noteClassRef(i)
		case TagNameAndType:
			refs.noteNameAndTypeType(i)
		}
	}
}

func parseBasicInfo(r *BufferedReader, cp *ConstantPool, record *ParsedClass, relativePath string, spec *ScanSpec) ParseOutcome {
	modifiers, err := r.ReadU2()
	if err != nil {
		return failure(fmt.Errorf("%s: %w", relativePath, err))
	}
	record.Modifiers = modifiers
	record.IsInterface = modifiers&AccInterface != 0
	record.IsAnnotation = modifiers&AccAnnotation != 0

	thisClassIdx, err := r.ReadU2()
	if err != nil {
		return failure(fmt.Errorf("%s: %w", relativePath, err))
	}
	className, err := cp.GetClassName(int(thisClassIdx))
	if err != nil {
		return failure(fmt.Errorf("%s: %w", relativePath, err))
	}

	if className == "java.lang.Object" {
		return skip("java.lang.Object has no superclass; omitted from the graph")
	}

	isModuleOrPackageInfo := modifiers&AccModule != 0 ||
		className == "package-info" || strings.HasSuffix(className, ".package-info")

	if !spec.IgnoreClassVisibility && modifiers&AccPublic == 0 && !isModuleOrPackageInfo {
		return skip(fmt.Sprintf("%s is not public", className))
	}

	expectedPath := strings.ReplaceAll(className, ".", "/") + ".class"
	if relativePath != "" && relativePath != expectedPath {
		return skip(fmt.Sprintf("path %q does not match class name %q", relativePath, className))
	}

	record.ClassName = className

	superclassIdx, err := r.ReadU2()
	if err != nil {
		return failure(fmt.Errorf("%s: %w", relativePath, err))
	}
	if superclassIdx != 0 {
		superName, err := cp.GetClassName(int(superclassIdx))
		if err != nil {
			return failure(fmt.Errorf("%s: %w", relativePath, err))
		}
		record.SuperclassName = superName
	}

	return done(record)
}

func parseInterfaces(r *BufferedReader, cp *ConstantPool, record *ParsedClass) error {
	count, err := r.ReadU2()
	if err != nil {
		return err
	}
	record.InterfaceNames = make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		idx, err := r.ReadU2()
		if err != nil {
			return err
		}
		name, err := cp.GetClassName(int(idx))
		if err != nil {
			return err
		}
		record.InterfaceNames = append(record.InterfaceNames, name)
	}
	return nil
}

func parseFields(r *BufferedReader, cp *ConstantPool, record *ParsedClass, spec *ScanSpec) error {
	count, err := r.ReadU2()
	if err != nil {
		return err
	}

	for i := 0; i < int(count); i++ {
		accessFlags, err := r.ReadU2()
		if err != nil {
			return err
		}
		nameIdx, err := r.ReadU2()
		if err != nil {
			return err
		}
		descIdx, err := r.ReadU2()
		if err != nil {
			return err
		}
		name, err := cp.GetString(int(nameIdx), false, false)
		if err != nil {
			return err
		}
		desc, err := cp.GetString(int(descIdx), true, false)
		if err != nil {
			return err
		}

		visible := spec.IgnoreFieldVisibility || accessFlags&AccPublic != 0
		isStaticFinal := accessFlags&AccStatic != 0 && accessFlags&AccFinal != 0

		field := FieldInfo{Name: name, Modifiers: accessFlags, TypeDescriptor: desc}
		wantConstant := visible && isStaticFinal && spec.EnableStaticFinalFieldConstantInitializerValues
		emit := visible && spec.EnableFieldInfo

		attrCount, err := r.ReadU2()
		if err != nil {
			return err
		}
		for a := 0; a < int(attrCount); a++ {
			nameIdx, err := r.ReadU2()
			if err != nil {
				return err
			}
			length, err := r.ReadU4()
			if err != nil {
				return err
			}
			switch {
			case cp.EqualsUTF8Literal(int(nameIdx), "ConstantValue") && wantConstant:
				value, err := readConstantValue(r, cp, desc)
				if err != nil {
					return err
				}
				field.ConstantValue = value
			case cp.EqualsUTF8Literal(int(nameIdx), "Signature"):
				sigIdx, err := r.ReadU2()
				if err != nil {
					return err
				}
				sig, err := cp.GetString(int(sigIdx), false, false)
				if err != nil {
					return err
				}
				field.Signature = sig
			case isAnnotationAttribute(cp, int(nameIdx), spec):
				anns, err := readAnnotationList(r, cp)
				if err != nil {
					return err
				}
				field.Annotations = append(field.Annotations, anns...)
			default:
				if err := r.Skip(int(length)); err != nil {
					return err
				}
			}
		}

		if emit || field.ConstantValue != nil {
			record.Fields = append(record.Fields, field)
		}
	}
	return nil
}

// readConstantValue reads the ConstantValue attribute's single u2 index and
// resolves it per the field descriptor's first character (JVM Spec 4.7.2).
func readConstantValue(r *BufferedReader, cp *ConstantPool, fieldDescriptor string) (interface{}, error) {
	idx, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	if len(fieldDescriptor) == 0 {
		return nil, fmt.Errorf("empty field descriptor for ConstantValue")
	}
	switch fieldDescriptor[0] {
	case 'I', 'S', 'C', 'B', 'Z':
		v, err := cp.getIntegerConstant(int(idx))
		if err != nil {
			return nil, err
		}
		return narrowInt(descriptorConstTag(fieldDescriptor[0]), v), nil
	case 'J':
		return cp.getLongConstant(int(idx))
	case 'F':
		v, err := cp.getIntegerConstant(int(idx))
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(uint32(v)), nil
	case 'D':
		v, err := cp.getLongConstant(int(idx))
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(uint64(v)), nil
	default:
		return cp.GetString(int(idx), false, false)
	}
}

func descriptorConstTag(c byte) byte {
	switch c {
	case 'I':
		return 'I'
	case 'S':
		return 'S'
	case 'C':
		return 'C'
	case 'B':
		return 'B'
	case 'Z':
		return 'Z'
	default:
		return 'I'
	}
}

func isAnnotationAttribute(cp *ConstantPool, nameIdx int, spec *ScanSpec) bool {
	if !spec.EnableAnnotationInfo {
		return false
	}
	if cp.EqualsUTF8Literal(nameIdx, "RuntimeVisibleAnnotations") {
		return true
	}
	return !spec.DisableRuntimeInvisibleAnnotations && cp.EqualsUTF8Literal(nameIdx, "RuntimeInvisibleAnnotations")
}

func readAnnotationList(r *BufferedReader, cp *ConstantPool) ([]AnnotationInfo, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	list := make([]AnnotationInfo, 0, count)
	for i := 0; i < int(count); i++ {
		ann, err := readAnnotation(r, cp)
		if err != nil {
			return nil, err
		}
		list = append(list, ann)
	}
	return list, nil
}

func parseMethods(r *BufferedReader, cp *ConstantPool, record *ParsedClass, spec *ScanSpec) error {
	count, err := r.ReadU2()
	if err != nil {
		return err
	}

	for i := 0; i < int(count); i++ {
		accessFlags, err := r.ReadU2()
		if err != nil {
			return err
		}
		nameIdx, err := r.ReadU2()
		if err != nil {
			return err
		}
		descIdx, err := r.ReadU2()
		if err != nil {
			return err
		}
		name, err := cp.GetString(int(nameIdx), false, false)
		if err != nil {
			return err
		}
		desc, err := cp.GetString(int(descIdx), false, false)
		if err != nil {
			return err
		}

		visible := spec.IgnoreMethodVisibility || accessFlags&AccPublic != 0 || record.IsAnnotation
		emit := (visible && spec.EnableMethodInfo) || record.IsAnnotation

		method := MethodInfo{Name: name, Modifiers: accessFlags, TypeDescriptor: desc}
		var defaultValue *AnnotationValue

		attrCount, err := r.ReadU2()
		if err != nil {
			return err
		}
		for a := 0; a < int(attrCount); a++ {
			attrNameIdx, err := r.ReadU2()
			if err != nil {
				return err
			}
			length, err := r.ReadU4()
			if err != nil {
				return err
			}
			switch {
			case cp.EqualsUTF8Literal(int(attrNameIdx), "Code"):
				method.HasBody = true
				if err := r.Skip(int(length)); err != nil {
					return err
				}
			case cp.EqualsUTF8Literal(int(attrNameIdx), "Signature"):
				sigIdx, err := r.ReadU2()
				if err != nil {
					return err
				}
				sig, err := cp.GetString(int(sigIdx), false, false)
				if err != nil {
					return err
				}
				method.Signature = sig
			case cp.EqualsUTF8Literal(int(attrNameIdx), "MethodParameters"):
				if err := readMethodParameters(r, cp, &method); err != nil {
					return err
				}
			case cp.EqualsUTF8Literal(int(attrNameIdx), "RuntimeVisibleParameterAnnotations"):
				if spec.EnableAnnotationInfo {
					if err := readParameterAnnotations(r, cp, &method); err != nil {
						return err
					}
				} else if err := r.Skip(int(length)); err != nil {
					return err
				}
			case cp.EqualsUTF8Literal(int(attrNameIdx), "RuntimeInvisibleParameterAnnotations"):
				if spec.EnableAnnotationInfo && !spec.DisableRuntimeInvisibleAnnotations {
					if err := readParameterAnnotations(r, cp, &method); err != nil {
						return err
					}
				} else if err := r.Skip(int(length)); err != nil {
					return err
				}
			case cp.EqualsUTF8Literal(int(attrNameIdx), "AnnotationDefault"):
				value, err := readElementValue(r, cp)
				if err != nil {
					return err
				}
				defaultValue = &value
			case isAnnotationAttribute(cp, int(attrNameIdx), spec):
				anns, err := readAnnotationList(r, cp)
				if err != nil {
					return err
				}
				method.Annotations = append(method.Annotations, anns...)
			default:
				if err := r.Skip(int(length)); err != nil {
					return err
				}
			}
		}

		if defaultValue != nil {
			record.AnnotationDefaults = append(record.AnnotationDefaults, AnnotationDefaultValue{
				MethodName: name,
				Value:      *defaultValue,
			})
		}

		if emit {
			record.Methods = append(record.Methods, method)
		}
	}
	return nil
}

func readMethodParameters(r *BufferedReader, cp *ConstantPool, method *MethodInfo) error {
	count, err := r.ReadU1()
	if err != nil {
		return err
	}
	method.ParamNames = make([]string, count)
	method.ParamModifiers = make([]uint16, count)
	for i := 0; i < int(count); i++ {
		nameIdx, err := r.ReadU2()
		if err != nil {
			return err
		}
		mods, err := r.ReadU2()
		if err != nil {
			return err
		}
		if nameIdx != 0 {
			name, err := cp.GetString(int(nameIdx), false, false)
			if err != nil {
				return err
			}
			method.ParamNames[i] = name
		}
		method.ParamModifiers[i] = mods
	}
	return nil
}

func readParameterAnnotations(r *BufferedReader, cp *ConstantPool, method *MethodInfo) error {
	count, err := r.ReadU1()
	if err != nil {
		return err
	}
	method.ParamAnnotations = make([]ParamAnnotations, count)
	for i := 0; i < int(count); i++ {
		anns, err := readAnnotationList(r, cp)
		if err != nil {
			return err
		}
		method.ParamAnnotations[i].Annotations = anns
	}
	return nil
}

func parseClassAttributes(r *BufferedReader, cp *ConstantPool, record *ParsedClass, spec *ScanSpec) error {
	count, err := r.ReadU2()
	if err != nil {
		return err
	}

	for i := 0; i < int(count); i++ {
		nameIdx, err := r.ReadU2()
		if err != nil {
			return err
		}
		length, err := r.ReadU4()
		if err != nil {
			return err
		}
		switch {
		case isAnnotationAttribute(cp, int(nameIdx), spec):
			anns, err := readAnnotationList(r, cp)
			if err != nil {
				return err
			}
			record.ClassAnnotations = append(record.ClassAnnotations, anns...)
		case cp.EqualsUTF8Literal(int(nameIdx), "InnerClasses"):
			if err := readInnerClasses(r, cp, record); err != nil {
				return err
			}
		case cp.EqualsUTF8Literal(int(nameIdx), "Signature"):
			sigIdx, err := r.ReadU2()
			if err != nil {
				return err
			}
			sig, err := cp.GetString(int(sigIdx), false, false)
			if err != nil {
				return err
			}
			record.ClassSignature = sig
		case cp.EqualsUTF8Literal(int(nameIdx), "EnclosingMethod"):
			if err := readEnclosingMethod(r, cp, record); err != nil {
				return err
			}
		case cp.EqualsUTF8Literal(int(nameIdx), "Module"):
			if err := readModuleAttribute(r, cp, record, int(length)); err != nil {
				return err
			}
		default:
			if err := r.Skip(int(length)); err != nil {
				return err
			}
		}
	}
	return nil
}

func readInnerClasses(r *BufferedReader, cp *ConstantPool, record *ParsedClass) error {
	count, err := r.ReadU2()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		innerIdx, err := r.ReadU2()
		if err != nil {
			return err
		}
		outerIdx, err := r.ReadU2()
		if err != nil {
			return err
		}
		if _, err := r.ReadU2(); err != nil { // inner_name_index, unused
			return err
		}
		if _, err := r.ReadU2(); err != nil { // inner_class_access_flags, unused
			return err
		}
		if innerIdx == 0 || outerIdx == 0 {
			continue
		}
		inner, err := cp.GetClassName(int(innerIdx))
		if err != nil {
			return err
		}
		outer, err := cp.GetClassName(int(outerIdx))
		if err != nil {
			return err
		}
		record.Containment = append(record.Containment, ContainmentEdge{Inner: inner, Outer: outer})
	}
	return nil
}

func readEnclosingMethod(r *BufferedReader, cp *ConstantPool, record *ParsedClass) error {
	classIdx, err := r.ReadU2()
	if err != nil {
		return err
	}
	methodIdx, err := r.ReadU2()
	if err != nil {
		return err
	}
	enclosingClass, err := cp.GetClassName(int(classIdx))
	if err != nil {
		return err
	}

	methodName := "<clinit>"
	if methodIdx != 0 {
		name, err := cp.GetNameAndTypeString(int(methodIdx), 0)
		if err != nil {
			return err
		}
		methodName = name
	}

	record.EnclosingMethodName = enclosingClass + "." + methodName
	record.Containment = append(record.Containment, ContainmentEdge{Inner: record.ClassName, Outer: enclosingClass})
	return nil
}

// readModuleAttribute reads only the module_name_index (JVM Spec 4.7.25);
// full module-descriptor parsing (requires/exports/opens/uses/provides) is
// out of scope, so the remaining declared_length - 2 bytes are skipped.
func readModuleAttribute(r *BufferedReader, cp *ConstantPool, record *ParsedClass, declaredLength int) error {
	nameIdx, err := r.ReadU2()
	if err != nil {
		return err
	}
	name, err := cp.GetString(int(nameIdx), false, false)
	if err != nil {
		return err
	}
	record.ModuleName = name
	return r.Skip(declaredLength - 2)
}


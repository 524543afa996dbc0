package typesig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Primitive(t *testing.T) {
	ts, err := Parse("I")
	require.NoError(t, err)
	assert.Empty(t, ts.ClassName)
}

func TestParse_ClassType(t *testing.T) {
	ts, err := Parse("Ljava/lang/String;")
	require.NoError(t, err)
	assert.Equal(t, "java.lang.String", ts.ClassName)
}

func TestParse_ArrayOfClass(t *testing.T) {
	ts, err := Parse("[Ljava/lang/String;")
	require.NoError(t, err)
	assert.Equal(t, "java.lang.String", ts.ClassName)
	assert.Equal(t, 1, ts.ArrayDims)
}

func TestParse_ParameterizedType(t *testing.T) {
	ts, err := Parse("Ljava/util/List<Ljava/lang/String;>;")
	require.NoError(t, err)
	assert.Equal(t, "java.util.List", ts.ClassName)
	require.Len(t, ts.TypeArguments, 1)
	assert.Equal(t, "java.lang.String", ts.TypeArguments[0].ClassName)
}

func TestParse_WildcardTypeArgument(t *testing.T) {
	ts, err := Parse("Ljava/util/List<*>;")
	require.NoError(t, err)
	assert.Empty(t, ts.TypeArguments)
}

func TestParse_TypeVariable(t *testing.T) {
	ts, err := Parse("TE;")
	require.NoError(t, err)
	assert.Equal(t, "E", ts.TypeVariable)
	assert.Empty(t, ts.ClassName)
}

func TestParse_TrailingCharactersError(t *testing.T) {
	_, err := Parse("Ljava/lang/String;extra")
	assert.Error(t, err)
}

func TestParse_InnerClassSuffix(t *testing.T) {
	ts, err := Parse("Lcom/example/Outer<Ljava/lang/String;>.Inner;")
	require.NoError(t, err)
	assert.Equal(t, "com.example.Outer", ts.ClassName)
}

func TestParseMethod_SimpleDescriptor(t *testing.T) {
	m, err := ParseMethod("(ILjava/lang/String;)V")
	require.NoError(t, err)
	require.Len(t, m.ParameterTypes, 2)
	assert.Equal(t, "java.lang.String", m.ParameterTypes[1].ClassName)
	assert.Empty(t, m.ReturnType.ClassName)
}

func TestParseMethod_GenericSignatureWithTypeParamsAndThrows(t *testing.T) {
	m, err := ParseMethod("<T:Ljava/lang/Object;>(TT;)Ljava/util/List<TT;>;^Ljava/io/IOException;")
	require.NoError(t, err)
	assert.Equal(t, []string{"T"}, m.TypeParameters)
	require.Len(t, m.ParameterTypes, 1)
	assert.Equal(t, "T", m.ParameterTypes[0].TypeVariable)
	assert.Equal(t, "java.util.List", m.ReturnType.ClassName)
	require.Len(t, m.ThrowsTypes, 1)
	assert.Equal(t, "java.io.IOException", m.ThrowsTypes[0].ClassName)
}

func TestFindReferencedClassNames_CollectsNestedTypeArguments(t *testing.T) {
	ts, err := Parse("Ljava/util/Map<Ljava/lang/String;Ljava/util/List<Ljava/lang/Integer;>;>;")
	require.NoError(t, err)

	out := make(map[string]struct{})
	ts.FindReferencedClassNames(out)

	assert.Contains(t, out, "java.util.Map")
	assert.Contains(t, out, "java.lang.String")
	assert.Contains(t, out, "java.util.List")
	assert.Contains(t, out, "java.lang.Integer")
}

func TestMethodTypeSignature_FindReferencedClassNames(t *testing.T) {
	m, err := ParseMethod("(Ljava/lang/String;)Ljava/util/List;")
	require.NoError(t, err)

	out := make(map[string]struct{})
	m.FindReferencedClassNames(out)

	assert.Contains(t, out, "java.lang.String")
	assert.Contains(t, out, "java.util.List")
}

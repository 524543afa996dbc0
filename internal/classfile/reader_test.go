package classfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedReader_SequentialReads(t *testing.T) {
	r := NewBufferedReader([]byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00, 0x34})

	magic, err := r.ReadU4()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFEBABE), magic)

	minor, err := r.ReadU2()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x34), minor)

	assert.Equal(t, 6, r.Pos())
}

func TestBufferedReader_ReadU8(t *testing.T) {
	r := NewBufferedReader([]byte{0, 0, 0, 0, 0, 0, 0, 42})
	v, err := r.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
}

func TestBufferedReader_RequireOverrun(t *testing.T) {
	r := NewBufferedReader([]byte{0x01})
	_, err := r.ReadU2()
	assert.Error(t, err)
}

func TestBufferedReader_SkipAndBytes(t *testing.T) {
	r := NewBufferedReader([]byte{1, 2, 3, 4, 5})
	require.NoError(t, r.Skip(2))
	b, err := r.ReadBytes(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5}, b)
}

func TestDecodeModifiedUTF8_ASCII(t *testing.T) {
	s, err := decodeModifiedUTF8([]byte("java/lang/Object"))
	require.NoError(t, err)
	assert.Equal(t, "java/lang/Object", s)
}

func TestDecodeModifiedUTF8_NullByte(t *testing.T) {
	// JVM modified UTF-8 encodes U+0000 as the two-byte form 0xC0 0x80.
	s, err := decodeModifiedUTF8([]byte{0xC0, 0x80})
	require.NoError(t, err)
	assert.Equal(t, "\x00", s)
}

func TestDecodeModifiedUTF8_SupplementaryCharacter(t *testing.T) {
	// U+1F600 (grinning face) encoded as the JVM's six-byte surrogate form.
	b := []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}
	s, err := decodeModifiedUTF8(b)
	require.NoError(t, err)
	r := []rune(s)
	require.Len(t, r, 1)
	assert.Equal(t, rune(0x1F600), r[0])
}

func TestDecodeModifiedUTF8_MalformedLeadByte(t *testing.T) {
	_, err := decodeModifiedUTF8([]byte{0xFF})
	assert.Error(t, err)
}

func TestReadString_StripLSemicolonAndSlashes(t *testing.T) {
	// u2 length-prefixed "Ljava/lang/String;"
	payload := "Ljava/lang/String;"
	buf := append([]byte{0x00, byte(len(payload))}, []byte(payload)...)
	r := NewBufferedReader(buf)

	s, err := r.ReadString(0, true, true)
	require.NoError(t, err)
	assert.Equal(t, "java.lang.String", s)
}

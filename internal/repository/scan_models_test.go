package repository

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junjiewwang/classgraph/internal/classfile"
	"github.com/junjiewwang/classgraph/internal/linker"
	"github.com/junjiewwang/classgraph/pkg/compression"
)

func TestNewScanSnapshot_ProjectsGraphToJSON(t *testing.T) {
	g := linker.NewGraph()
	g.Link(&classfile.ParsedClass{
		ClassName:      "com.example.Foo",
		SuperclassName: "java.lang.Object",
	}, nil)

	snap, err := NewScanSnapshot("session-1", g)
	require.NoError(t, err)

	assert.Equal(t, "session-1", snap.SessionUUID)
	assert.Equal(t, 2, snap.ClassCount) // Foo plus the java.lang.Object placeholder
	assert.Equal(t, 1, snap.PackageCount)

	var classes []classSummary
	require.NoError(t, json.Unmarshal(snap.Classes, &classes))

	var fooCount int
	for _, c := range classes {
		if c.Name == "com.example.Foo" {
			fooCount++
			assert.Equal(t, "java.lang.Object", c.Superclass)
		}
	}
	assert.Equal(t, 1, fooCount)
}

func TestNewScanSnapshot_CompressedBlobRoundtrips(t *testing.T) {
	g := linker.NewGraph()
	g.Link(&classfile.ParsedClass{ClassName: "com.example.Foo"}, nil)

	snap, err := NewScanSnapshot("session-2", g)
	require.NoError(t, err)
	require.NotEmpty(t, snap.CompressedBlob)

	zc, err := compression.NewZstdCompressor(compression.LevelDefault)
	require.NoError(t, err)

	raw, err := zc.Decompress(snap.CompressedBlob)
	require.NoError(t, err)

	var payload struct {
		Classes []classSummary `json:"classes"`
	}
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Len(t, payload.Classes, 1)
	assert.Equal(t, "com.example.Foo", payload.Classes[0].Name)
}

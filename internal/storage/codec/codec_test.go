package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/webvfs/pkg/types"
)

func TestMarshal_Deterministic(t *testing.T) {
	rec := &types.Record{Path: "/a", Name: "a", Kind: types.KindFile, ParentPath: "/", Content: []byte("x"), Size: 1}

	first, err := Marshal(rec)
	require.NoError(t, err)
	second, err := Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMarshal_CompressesLargeContent(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 2000)
	rec := &types.Record{Path: "/big", Kind: types.KindFile, Content: content, Size: int64(len(content))}

	data, err := Marshal(rec)
	require.NoError(t, err)
	assert.Less(t, len(data), len(content)/4)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, content, got.Content)
	assert.Equal(t, rec.Size, got.Size)
}

func TestMarshal_SmallContentStaysPlain(t *testing.T) {
	rec := &types.Record{Path: "/s", Kind: types.KindFile, Content: []byte("small")}
	data, err := Marshal(rec)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(data, []byte("small")))
}

func TestUnmarshal_Garbage(t *testing.T) {
	_, err := Unmarshal([]byte{0xff, 0x00, 0x13})
	assert.Error(t, err)
}

package objectkey_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
)

func TestSourceLayout(t *testing.T) {
	id := uuid.MustParse("a1b2c3d4-0000-0000-0000-000000000000")
	key := objectkey.Source(id, "photo.jpg")

	hexID := strings.ReplaceAll(id.String(), "-", "")
	assert.Equal(t, hexID[:2]+"/"+hexID+"/photo.jpg", key)
}

func TestSourceSanitizesFileName(t *testing.T) {
	id := uuid.New()
	key := objectkey.Source(id, `my photo/..\v1:final?.jpg`)

	parts := strings.Split(key, "/")
	require.Len(t, parts, 3)
	assert.Equal(t, "my_photo_.._v1_final_.jpg", parts[2])
}

func TestSourceEmptyFileName(t *testing.T) {
	key := objectkey.Source(uuid.New(), "")
	assert.True(t, strings.HasSuffix(key, "/original"))
}

func TestDerivativePrefixFreshPerRun(t *testing.T) {
	id := uuid.New()
	first := objectkey.DerivativePrefix(id)
	second := objectkey.DerivativePrefix(id)

	// Same item, same shard and id segments, distinct generation.
	hexID := strings.ReplaceAll(id.String(), "-", "")
	assert.True(t, strings.HasPrefix(first, hexID[:2]+"/"+hexID+"/"))
	assert.True(t, strings.HasPrefix(second, hexID[:2]+"/"+hexID+"/"))
	assert.NotEqual(t, first, second)
}

func TestDerivativeJoinsPrefix(t *testing.T) {
	assert.Equal(t, "ab/cdef/gen1/small.jpg", objectkey.Derivative("ab/cdef/gen1", "small.jpg"))
}

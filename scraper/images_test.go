package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateImage(t *testing.T) {
	ok := pngBytes(t, 40, 30, 9)

	img, err := ValidateImage(ok, 30)
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 40, img.Width)
	assert.Equal(t, 30, img.Height)
	assert.Equal(t, HashBytes(ok), img.Hash)
	assert.Len(t, img.Hash, 64)

	_, err = ValidateImage(ok, 31)
	assert.ErrorIs(t, err, ErrTooSmall)

	_, err = ValidateImage([]byte("<html>not an image</html>"), 1)
	assert.ErrorIs(t, err, ErrUndecodable)

	_, err = ValidateImage(nil, 1)
	assert.ErrorIs(t, err, ErrUndecodable)

	_, err = ValidateImage(ok[:len(ok)/2], 1)
	assert.ErrorIs(t, err, ErrUndecodable, "truncated data must not pass")
}

func TestHashBytesIsStable(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashBytes(nil))
	assert.Equal(t, HashBytes([]byte("x")), HashBytes([]byte("x")))
	assert.NotEqual(t, HashBytes([]byte("x")), HashBytes([]byte("y")))
}

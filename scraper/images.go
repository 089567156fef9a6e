package scraper

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

var (
	ErrUndecodable = errors.New("image: not a decodable jpeg, png, gif or webp")
	ErrTooSmall    = errors.New("image: below minimum dimension")
)

// ValidatedImage is a downloaded image that decoded cleanly.
type ValidatedImage struct {
	Data   []byte
	Hash   string
	Format string
	Width  int
	Height int
}

// ValidateImage decodes data fully and checks that both sides are at least
// minDim pixels. The returned hash is the hex SHA-256 of the raw bytes.
func ValidateImage(data []byte, minDim int) (*ValidatedImage, error) {
	if len(data) == 0 {
		return nil, ErrUndecodable
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width < minDim || cfg.Height < minDim {
		return nil, fmt.Errorf("%w: %dx%d < %d", ErrTooSmall, cfg.Width, cfg.Height, minDim)
	}
	// Truncated files often pass DecodeConfig.
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	return &ValidatedImage{
		Data:   data,
		Hash:   HashBytes(data),
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// HashBytes returns the lowercase hex SHA-256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

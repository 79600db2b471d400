// Package imaging computes perceptual hashes of app icons.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/webp"
)

// ErrUnreadableImage is returned when bytes cannot be decoded as an image
var ErrUnreadableImage = errors.New("unreadable image")

// maxIconPixels bounds decoding work for hostile icons
const maxIconPixels = 4096 * 4096

// PHasher hashes images with a DCT perceptual hash
type PHasher struct{}

// NewPHasher creates a perceptual hasher
func NewPHasher() *PHasher {
	return &PHasher{}
}

// Hash decodes data and returns its perceptual hash in "p:<hex>" form
func (h *PHasher) Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrUnreadableImage
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxIconPixels {
		return "", fmt.Errorf("%w: dimensions %dx%d", ErrUnreadableImage, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	return h.HashImage(img)
}

// HashImage hashes an already decoded image
func (h *PHasher) HashImage(img image.Image) (string, error) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	return hash.ToString(), nil
}

// Distance returns the hamming distance between two hashes produced by Hash.
// A bare 16-digit hex string is read as a perceptual hash, which is how
// reference registries usually store them.
func (h *PHasher) Distance(a, b string) (int, int, error) {
	ha, err := parseHash(a)
	if err != nil {
		return 0, 0, err
	}
	hb, err := parseHash(b)
	if err != nil {
		return 0, 0, err
	}
	dist, err := ha.Distance(hb)
	if err != nil {
		return 0, 0, err
	}
	return dist, ha.Bits(), nil
}

func parseHash(s string) (*goimagehash.ImageHash, error) {
	s = strings.TrimSpace(s)
	if isBareHex64(s) {
		s = "p:" + strings.ToLower(s)
	}
	hash, err := goimagehash.ImageHashFromString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse hash %q: %w", s, err)
	}
	return hash, nil
}

func isBareHex64(s string) bool {
	if len(s) != 16 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

package images

import (
	"bytes"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	// Register additional decoders with image.Decode.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
)

// Image represents an encoded image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// Decode decodes the encoded bytes, applying any EXIF orientation, and fills in Width and
// Height from the decoded result.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: ErrInvalidImage when the data is empty or undecodable.
func (i *Image) Decode() (image.Image, error) {
	if len(i.Data) == 0 {
		return nil, errors.Wrap(ErrInvalidImage, "empty image data")
	}

	img, err := imaging.Decode(bytes.NewReader(i.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidImage, "decode %s: %v", i.Format, err)
	}

	d := DimensionsOf(img)
	i.Width, i.Height = d.Width, d.Height

	return img, nil
}

// Load reads and decodes the image file at path.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}

	return img, nil
}

// FormatFromPath guesses the image format from a file extension.
func FormatFromPath(path string) (ImageFormat, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG, true
	case ".png":
		return FormatPNG, true
	case ".webp":
		return FormatWebP, true
	case ".bmp":
		return FormatBMP, true
	default:
		return "", false
	}
}

// DimensionsOf returns the width and height of img's bounds.
func DimensionsOf(img image.Image) Dimensions {
	b := img.Bounds()
	return Dimensions{Width: b.Dx(), Height: b.Dy()}
}

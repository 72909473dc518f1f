package imageprocessor

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"

	"github.com/example/face-verify/internal/domain"
)

const jpegQuality = 95

// Normalized is an upload prepared for inference.
type Normalized struct {
	JPEG   []byte
	Width  int
	Height int
	Scaled bool
}

// Normalize decodes an uploaded image, downsizes it so its longest side is at
// most maxSide (0 disables the limit) and returns JPEG bytes. JPEG input that
// needs no resizing is passed through untouched.
func Normalize(data []byte, maxSide int) (*Normalized, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, domain.ErrInvalidImage.WithMessage("image has no pixels")
	}

	scaled := false
	if maxSide > 0 && (width > maxSide || height > maxSide) {
		if width >= height {
			img = resize.Resize(uint(maxSide), 0, img, resize.Bilinear)
		} else {
			img = resize.Resize(0, uint(maxSide), img, resize.Bilinear)
		}
		scaled = true
		width, height = img.Bounds().Dx(), img.Bounds().Dy()
	}

	if format == "jpeg" && !scaled {
		return &Normalized{JPEG: data, Width: width, Height: height}, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	return &Normalized{JPEG: buf.Bytes(), Width: width, Height: height, Scaled: scaled}, nil
}

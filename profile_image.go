package portal

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	goerrors "github.com/goliatone/go-errors"
)

// PreviewSize is the bounding box of the generated preview, in pixels.
const PreviewSize = 256

// MaxProfileImagePixels caps the decoded size of a picture. The header is
// checked before decoding, so a small file cannot declare a huge canvas.
const MaxProfileImagePixels int64 = 40_000_000

var allowedImageFormats = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
}

// ProfileImage is an uploaded profile picture. Data and Preview are always
// set together.
type ProfileImage struct {
	Data        []byte `json:"data"`
	ContentType string `json:"content_type"`
	Preview     string `json:"preview"`
}

// NewProfileImage checks that data is a single jpeg, png or gif no larger
// than maxBytes and renders a JPEG preview as a data URL.
func NewProfileImage(data []byte, maxBytes int64) (*ProfileImage, error) {
	if len(data) == 0 {
		return nil, WrapFailure(fmt.Errorf("empty upload"), ErrInvalidImage)
	}

	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, WrapFailure(fmt.Errorf("upload is %d bytes", len(data)), ErrInvalidImage).
			WithMetadata(map[string]any{"too_large": true, "max_bytes": maxBytes})
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, WrapFailure(err, ErrInvalidImage)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxProfileImagePixels {
		return nil, WrapFailure(fmt.Errorf("image is %dx%d pixels", cfg.Width, cfg.Height), ErrInvalidImage).
			WithMetadata(map[string]any{"max_pixels": MaxProfileImagePixels})
	}

	contentType, ok := allowedImageFormats[format]
	if !ok {
		return nil, WrapFailure(fmt.Errorf("unsupported format %q", format), ErrInvalidImage)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, WrapFailure(err, ErrInvalidImage)
	}

	thumb := imaging.Fit(img, PreviewSize, PreviewSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, WrapFailure(err, ErrInvalidImage)
	}

	return &ProfileImage{
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
		Preview:     "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

func isImageTooLarge(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Metadata == nil {
		return false
	}
	tooLarge, _ := richErr.Metadata["too_large"].(bool)
	return tooLarge
}

package documents

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"

	"clientdocs-backend/internal/shared/storage/object"
)

// ThumbnailMaxDim is the bounding box for generated thumbnails.
const ThumbnailMaxDim = 200

// Thumbnailer produces best-effort derived thumbnails for image inputs.
// Generation failures never abort ingestion; callers log and continue.
type Thumbnailer struct {
	Store object.BlobStore
}

// Generate decodes the image, scales it to fit ThumbnailMaxDim, and
// stores the result next to the original. Returns the thumbnail key.
func (t *Thumbnailer) Generate(ctx context.Context, data []byte, mimeType, storageKey string) (string, error) {
	if t.Store == nil {
		return "", fmt.Errorf("thumbnailer has no blob store")
	}

	src, err := decodeImage(data, mimeType)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	dst := scaleToFit(src, ThumbnailMaxDim)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}

	key := storageKey + ".thumb.jpg"
	if _, err := t.Store.PutDerived(ctx, key, "image/jpeg", &buf); err != nil {
		return "", fmt.Errorf("store thumbnail: %w", err)
	}
	return key, nil
}

func decodeImage(data []byte, mimeType string) (image.Image, error) {
	normalized := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	reader := bytes.NewReader(data)
	switch normalized {
	case "image/jpeg":
		return jpeg.Decode(reader)
	case "image/png":
		return png.Decode(reader)
	case "image/gif":
		return gif.Decode(reader)
	default:
		img, _, err := image.Decode(reader)
		return img, err
	}
}

func scaleToFit(src image.Image, maxDim int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}

	outW, outH := maxDim, maxDim
	if w > h {
		outH = h * maxDim / w
	} else {
		outW = w * maxDim / h
	}
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

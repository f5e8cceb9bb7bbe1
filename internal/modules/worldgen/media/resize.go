package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	_ "image/gif"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Downscale decodes an illustration and re-encodes it so its longest side is at most maxSide.
// Images already within bounds are returned unchanged. JPEG input stays JPEG, everything else becomes PNG.
func Downscale(raw []byte, maxSide int) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	mime := "image/png"
	if format == "jpeg" {
		mime = "image/jpeg"
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		if format == "png" || format == "jpeg" {
			return raw, mime, nil
		}
		return encode(img, mime)
	}

	nw, nh := maxSide, maxSide
	if w >= h {
		nh = h * maxSide / w
	} else {
		nw = w * maxSide / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return encode(dst, mime)
}

func encode(img image.Image, mime string) ([]byte, string, error) {
	var out bytes.Buffer
	if mime == "image/jpeg" {
		if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 88}); err != nil {
			return nil, "", fmt.Errorf("encode jpeg: %w", err)
		}
		return out.Bytes(), mime, nil
	}
	if err := png.Encode(&out, img); err != nil {
		return nil, "", fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), "image/png", nil
}

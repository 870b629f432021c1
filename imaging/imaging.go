// Package imaging holds the pixel-level building blocks shared by the
// rasterizer and the extractors: raster buffers, format normalization,
// and encoded image artifacts.
package imaging

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
)

// ErrUnsupportedPixelFormat marks a byte layout outside the three
// supported conversion paths (CMYK-4, RGB-3, RGBA-4).
var ErrUnsupportedPixelFormat = errors.New("imaging: unsupported pixel format")

type PixelFormat int

const (
	FormatRGB PixelFormat = iota + 1
	FormatRGBA
	FormatCMYK
)

// RasterBuffer is decoded pixel data, consumed once and then released.
type RasterBuffer struct {
	Width  int
	Height int
	Format PixelFormat
	Pix    []byte
}

// FromImage copies img into an RGBA raster buffer.
func FromImage(img image.Image) *RasterBuffer {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	return &RasterBuffer{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: FormatRGBA,
		Pix:    rgba.Pix,
	}
}

// Image views the buffer as an image.Image. Only RGBA buffers can be
// viewed directly; normalize first.
func (b *RasterBuffer) Image() (image.Image, error) {
	if b.Format != FormatRGBA {
		return nil, fmt.Errorf("%w: cannot view %v buffer as image", ErrUnsupportedPixelFormat, b.Format)
	}
	if len(b.Pix) != b.Width*b.Height*4 {
		return nil, fmt.Errorf("%w: buffer size mismatch", ErrUnsupportedPixelFormat)
	}
	return &image.RGBA{Pix: b.Pix, Stride: b.Width * 4, Rect: image.Rect(0, 0, b.Width, b.Height)}, nil
}

// Release drops the pixel data so peak memory stays bounded when many
// pages are queued.
func (b *RasterBuffer) Release() {
	b.Pix = nil
	b.Width = 0
	b.Height = 0
}

// NormalizeRGBA converts raw sample bytes to an RGBA buffer. The byte
// length per pixel selects the conversion path; cmyk distinguishes the
// two 4-byte layouts.
func NormalizeRGBA(pix []byte, width, height int, cmyk bool) (*RasterBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrUnsupportedPixelFormat, width, height)
	}
	n := width * height
	out := make([]byte, n*4)
	switch {
	case len(pix) == n*4 && cmyk:
		for i := 0; i < n; i++ {
			c, m, y, k := pix[i*4], pix[i*4+1], pix[i*4+2], pix[i*4+3]
			// R = 255*(1-C)*(1-K) with channels normalized by /255,
			// which reduces to integer form below.
			out[i*4] = byte((int(255-c) * int(255-k)) / 255)
			out[i*4+1] = byte((int(255-m) * int(255-k)) / 255)
			out[i*4+2] = byte((int(255-y) * int(255-k)) / 255)
			out[i*4+3] = 255
		}
	case len(pix) == n*4:
		copy(out, pix)
	case len(pix) == n*3:
		for i := 0; i < n; i++ {
			out[i*4] = pix[i*3]
			out[i*4+1] = pix[i*3+1]
			out[i*4+2] = pix[i*3+2]
			out[i*4+3] = 255
		}
	default:
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrUnsupportedPixelFormat, len(pix), width, height)
	}
	return &RasterBuffer{Width: width, Height: height, Format: FormatRGBA, Pix: out}, nil
}

// EncodedImage is a compressed image artifact, immutable once produced.
type EncodedImage struct {
	MIME     string
	Data     []byte
	Page     int
	Filename string
	Hash     string
}

// DataURI renders the artifact as a data URI for transmission to the
// recognition service.
func (e *EncodedImage) DataURI() string {
	return "data:" + e.MIME + ";base64," + base64.StdEncoding.EncodeToString(e.Data)
}

func newEncoded(mime string, data []byte) *EncodedImage {
	sum := sha256.Sum256(data)
	return &EncodedImage{MIME: mime, Data: data, Hash: hex.EncodeToString(sum[:])}
}

// EncodeJPEG produces a lossy artifact; quality is on the 1-100 scale.
func EncodeJPEG(img image.Image, quality int) (*EncodedImage, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("imaging: quality %d out of range", quality)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("imaging: jpeg encode: %w", err)
	}
	return newEncoded("image/jpeg", buf.Bytes()), nil
}

// EncodePNG produces a lossless artifact.
func EncodePNG(img image.Image) (*EncodedImage, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("imaging: png encode: %w", err)
	}
	return newEncoded("image/png", buf.Bytes()), nil
}

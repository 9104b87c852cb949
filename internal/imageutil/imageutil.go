// Package imageutil decodes uploads and converts between images and the
// flat float tensors the model consumes.
package imageutil

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage reports bytes that no registered decoder accepts.
var ErrInvalidImage = errors.New("invalid image")

// Decode reads all of r and decodes it with DecodeBytes.
func Decode(r io.Reader) (*image.NRGBA, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes a color image and returns it as opaque NRGBA. OpenCV
// decodes first, applying EXIF orientation and dropping alpha. Formats the
// local OpenCV build lacks fall back to the Go decoders.
func DecodeBytes(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no data", ErrInvalidImage)
	}

	bgr, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err == nil {
		defer bgr.Close()
		if !bgr.Empty() {
			rgb := gocv.NewMat()
			defer rgb.Close()
			gocv.CvtColor(bgr, &rgb, gocv.ColorBGRToRGB)
			return FromRGBMat(rgb)
		}
	}
	return decodeGo(data)
}

func decodeGo(data []byte) (*image.NRGBA, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 255
	}
	return out, nil
}

// ModelInput resizes img to size×size with bilinear interpolation and
// returns it as HWC RGB values scaled to [0,1].
func ModelInput(img *image.NRGBA, size int) ([]float32, error) {
	src, err := RGBMat(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)

	raw := resized.ToBytes()
	if len(raw) != size*size*3 {
		return nil, fmt.Errorf("resize to %dx%d produced %d bytes", size, size, len(raw))
	}
	data := make([]float32, len(raw))
	for i, v := range raw {
		data[i] = float32(v) / 255
	}
	return data, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

// PNGBase64 returns img as a base64-encoded PNG.
func PNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

package report

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	"github.com/fieldscope/vistoria/storage"
	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"
)

// fetchedImage is an image validated before it ever touches the pdf, so one
// undecodable photo cannot poison the whole document.
type fetchedImage struct {
	name      string
	imageType string
	data      []byte
	w, h      int
}

func fetchImage(ctx context.Context, store storage.ObjectStore, url string) (*fetchedImage, error) {
	data, err := store.Get(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "fetch image")
	}
	return validateImage(url, data)
}

// validateImage sniffs and decodes the image header up front; anything gofpdf
// cannot take is rejected here instead of poisoning the document.
func validateImage(name string, data []byte) (*fetchedImage, error) {
	var imageType string
	switch http.DetectContentType(data) {
	case "image/jpeg":
		imageType = "JPG"
	case "image/png":
		imageType = "PNG"
	default:
		return nil, errors.New("unsupported image format")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.New("degenerate image dimensions")
	}

	return &fetchedImage{name: name, imageType: imageType, data: data, w: cfg.Width, h: cfg.Height}, nil
}

// fit scales the image into a maxW x maxH box preserving aspect ratio.
func (img *fetchedImage) fit(maxW, maxH float64) (w, h float64) {
	ratio := float64(img.w) / float64(img.h)
	w, h = maxW, maxW/ratio
	if h > maxH {
		h = maxH
		w = maxH * ratio
	}
	return
}

// place registers and draws the image at x,y scaled into maxW x maxH.
func (img *fetchedImage) place(pdf *gofpdf.Fpdf, x, y, maxW, maxH float64) (w, h float64) {
	w, h = img.fit(maxW, maxH)
	opts := gofpdf.ImageOptions{ImageType: img.imageType, ReadDpi: false}
	pdf.RegisterImageOptionsReader(img.name, opts, bytes.NewReader(img.data))
	pdf.ImageOptions(img.name, x, y, w, h, false, opts, 0, "")
	return
}

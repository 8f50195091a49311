package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/draw"

	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/fieldset"
)

// Placement positions one overlay on the document: a PNG for signature fields
// or a text line for date fields.
type Placement struct {
	Field    fieldset.Field
	ImagePNG []byte
	Text     string
}

// Stamper applies overlays onto PDF bytes.
type Stamper interface {
	Stamp(ctx context.Context, doc []byte, placements []Placement) ([]byte, error)
}

// PdfcpuStamper stamps via pdfcpu watermarks. Field coordinates are PDF
// points measured from the page's top-left corner; pdfcpu anchors from the
// bottom-left, so the Y axis is flipped against the page height.
type PdfcpuStamper struct{}

func NewPdfcpuStamper() *PdfcpuStamper {
	return &PdfcpuStamper{}
}

func (s *PdfcpuStamper) Stamp(ctx context.Context, doc []byte, placements []Placement) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	current := doc

	for _, pl := range placements {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageCount, err := api.PageCount(bytes.NewReader(current), conf)
		if err != nil {
			return nil, fmt.Errorf("read page count: %w", err)
		}

		page := pl.Field.Page
		if page <= 0 || page > pageCount {
			page = pageCount
		}

		dims, err := api.PageDims(bytes.NewReader(current), conf)
		if err != nil {
			return nil, fmt.Errorf("read page dimensions: %w", err)
		}
		desc := watermarkDesc(pl.Field, dims[page-1].Height)

		var wm *model.Watermark
		switch {
		case len(pl.ImagePNG) > 0:
			fitted, err := fitPNG(pl.ImagePNG, pl.Field.Width, pl.Field.Height)
			if err != nil {
				return nil, fmt.Errorf("prepare overlay image for field %s: %w", pl.Field.ID, err)
			}
			wm, err = api.ImageWatermarkForReader(bytes.NewReader(fitted), desc, true, false, types.POINTS)
			if err != nil {
				return nil, fmt.Errorf("build image overlay for field %s: %w", pl.Field.ID, err)
			}
		case pl.Text != "":
			textDesc := fmt.Sprintf("%s, fontname:Helvetica, points:%d, fillcolor:#1a1a1a", desc, textPoints(pl.Field.Height))
			wm, err = api.TextWatermark(pl.Text, textDesc, true, false, types.POINTS)
			if err != nil {
				return nil, fmt.Errorf("build text overlay for field %s: %w", pl.Field.ID, err)
			}
		default:
			return nil, fmt.Errorf("placement for field %s has neither image nor text", pl.Field.ID)
		}

		var out bytes.Buffer
		if err := api.AddWatermarks(bytes.NewReader(current), &out, []string{strconv.Itoa(page)}, wm, conf); err != nil {
			return nil, fmt.Errorf("stamp page %d for field %s: %w", page, pl.Field.ID, err)
		}
		current = out.Bytes()
	}

	return current, nil
}

// watermarkDesc converts a top-left-anchored field box into a pdfcpu
// bottom-left placement at exact size.
func watermarkDesc(f fieldset.Field, pageHeight float64) string {
	offY := pageHeight - f.Y - f.Height
	return fmt.Sprintf("pos:bl, off:%.2f %.2f, scale:1 abs, rot:0", f.X, offY)
}

// textPoints picks a font size that sits inside the field box.
func textPoints(fieldHeight float64) int {
	pts := int(math.Round(fieldHeight * 0.45))
	if pts < 8 {
		return 8
	}
	if pts > 14 {
		return 14
	}
	return pts
}

// fitPNG scales the PNG to fit inside a width x height box (1px = 1pt for a
// scale:1 abs watermark), preserving aspect ratio and centering on a
// transparent canvas.
func fitPNG(src []byte, width, height float64) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}

	boxW := int(math.Round(width))
	boxH := int(math.Round(height))
	if boxW <= 0 || boxH <= 0 {
		return nil, fmt.Errorf("overlay box %gx%g is empty", width, height)
	}

	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()
	if srcW == 0 || srcH == 0 {
		return nil, fmt.Errorf("overlay image is empty")
	}

	scale := math.Min(float64(boxW)/float64(srcW), float64(boxH)/float64(srcH))
	fitW := int(math.Round(float64(srcW) * scale))
	fitH := int(math.Round(float64(srcH) * scale))
	if fitW < 1 {
		fitW = 1
	}
	if fitH < 1 {
		fitH = 1
	}

	x0 := (boxW - fitW) / 2
	y0 := (boxH - fitH) / 2

	dst := image.NewRGBA(image.Rect(0, 0, boxW, boxH))
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+fitW, y0+fitH), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

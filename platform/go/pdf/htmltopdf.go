package pdf

import (
	"context"
	"fmt"
	"strings"

	wkhtmltopdf "github.com/SebastiaanKlippert/go-wkhtmltopdf"
)

// Converter renders HTML markup to PDF bytes.
type Converter interface {
	Convert(ctx context.Context, markup string) ([]byte, error)
}

// WkhtmltopdfConverter shells out to the wkhtmltopdf binary.
type WkhtmltopdfConverter struct{}

// NewWkhtmltopdfConverter optionally pins the binary path (WKHTMLTOPDF_PATH);
// otherwise the binary is resolved from PATH.
func NewWkhtmltopdfConverter(binaryPath string) *WkhtmltopdfConverter {
	if binaryPath != "" {
		wkhtmltopdf.SetPath(binaryPath)
	}
	return &WkhtmltopdfConverter{}
}

func (c *WkhtmltopdfConverter) Convert(ctx context.Context, markup string) ([]byte, error) {
	gen, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("init wkhtmltopdf: %w", err)
	}

	gen.PageSize.Set(wkhtmltopdf.PageSizeLetter)
	gen.Dpi.Set(96)
	gen.MarginTop.Set(12)
	gen.MarginBottom.Set(12)
	gen.MarginLeft.Set(12)
	gen.MarginRight.Set(12)

	page := wkhtmltopdf.NewPageReader(strings.NewReader(markup))
	page.DisableExternalLinks.Set(true)
	gen.AddPage(page)

	if err := gen.CreateContext(ctx); err != nil {
		return nil, fmt.Errorf("convert html to pdf: %w", err)
	}

	return gen.Bytes(), nil
}

package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/medicode-agent/schema"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// OCR recognises the text of a single PDF page. Pages are 1-indexed.
type OCR interface {
	RecognizePage(ctx context.Context, pdfPath string, page int) (string, error)
}

type PDFExtractor struct {
	ocr OCR
}

// NewPDFExtractor returns an extractor that falls back to ocr for pages
// without a text layer. A nil ocr disables the fallback.
func NewPDFExtractor(ocr OCR) *PDFExtractor {
	return &PDFExtractor{ocr: ocr}
}

// Extract returns the sanitised text of every page joined by newlines.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "", fmt.Errorf("%w: %s is not a PDF", schema.ErrInput, filepath.Base(path))
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", schema.ErrInput, err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text := pageText(reader, i)
		if strings.TrimSpace(text) == "" && e.ocr != nil {
			text, err = e.ocr.RecognizePage(ctx, path, i)
			if err != nil {
				logger.Error("OCR failed", zap.String("file", filepath.Base(path)), zap.Int("page", i), zap.Error(err))
				text = ""
			}
		}
		pages = append(pages, Sanitize(text))
	}

	result := strings.Join(pages, "\n")
	if strings.TrimSpace(result) == "" {
		return "", fmt.Errorf("%w: no text could be extracted from %s", schema.ErrInput, filepath.Base(path))
	}

	logger.Info("Extracted PDF text", zap.String("file", filepath.Base(path)),
		zap.Int("pages", numPages), zap.Int("chars", len(result)))
	return result, nil
}

func pageText(reader *pdf.Reader, n int) string {
	page := reader.Page(n)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

// TesseractOCR rasterises a page with pdftoppm and reads it with tesseract.
type TesseractOCR struct {
	DPI      int
	Language string
}

func NewTesseractOCR() *TesseractOCR {
	return &TesseractOCR{DPI: 300, Language: "eng"}
}

func (t *TesseractOCR) RecognizePage(ctx context.Context, pdfPath string, page int) (string, error) {
	dir, err := os.MkdirTemp("", "medicode-ocr-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	pageArg := strconv.Itoa(page)
	render := exec.CommandContext(ctx, "pdftoppm",
		"-f", pageArg, "-l", pageArg, "-r", strconv.Itoa(t.DPI), "-png", pdfPath, prefix)
	if out, err := render.CombinedOutput(); err != nil {
		return "", fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(out)))
	}

	images, err := filepath.Glob(prefix + "*.png")
	if err != nil || len(images) == 0 {
		return "", fmt.Errorf("pdftoppm produced no image for page %d", page)
	}

	recognise := exec.CommandContext(ctx, "tesseract", images[0], "stdout", "-l", t.Language)
	out, err := recognise.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil
}

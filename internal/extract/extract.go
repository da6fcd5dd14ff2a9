// Package extract pulls plain text out of uploaded document files.
//
// Extraction is format-specific and fatal on failure: a document whose text
// cannot be read never proceeds to chunking, and the ingestion pipeline
// records the failure instead of a partial success.
package extract

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnsupported indicates the file extension has no registered extractor.
	ErrUnsupported = errors.New("unsupported document format")

	// ErrUnreadable indicates the file exists but its text could not be read.
	ErrUnreadable = errors.New("unreadable document")
)

// Extractor resolves a file to its plain text by extension.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Supported reports whether ext (including the leading dot) has an extractor.
func (e *Extractor) Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".txt", ".md", ".markdown", ".html", ".htm", ".pdf":
		return true
	}
	return false
}

// Text extracts the plain text of the file at path.
func (e *Extractor) Text(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", ".md", ".markdown":
		return plainText(path)
	case ".html", ".htm":
		return htmlText(path)
	case ".pdf":
		return pdfText(path)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

func plainText(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return string(content), nil
}

// htmlText reduces an HTML document to its readable article text, dropping
// navigation, scripts, and boilerplate.
func htmlText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer func() {
		_ = f.Close()
	}()

	pageURL := &url.URL{Scheme: "file", Path: path}
	article, err := readability.FromReader(f, pageURL)
	if err != nil {
		return "", fmt.Errorf("%w: parse html: %w", ErrUnreadable, err)
	}
	return article.TextContent, nil
}

func pdfText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %w", ErrUnreadable, err)
	}
	defer func() {
		_ = f.Close()
	}()

	r, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: extract pdf text: %w", ErrUnreadable, err)
	}

	text, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: read pdf text: %w", ErrUnreadable, err)
	}
	return string(text), nil
}

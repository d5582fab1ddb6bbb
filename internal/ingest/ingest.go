// Package ingest turns uploaded documents (PDF, HTML, plain text) into the
// free-text control description the pipeline consumes.
package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/config"
	"github.com/example/control-assessor/internal/platform/logger"
)

// Document kinds.
const (
	KindPDF  = "pdf"
	KindHTML = "html"
	KindText = "text"
)

var textExts = map[string]bool{
	"txt": true, "md": true, "markdown": true, "csv": true,
	"json": true, "log": true, "yaml": true, "yml": true,
}

type Limits struct {
	MaxBytes int64
	MaxPages int
	// Timeout bounds PDF page extraction.
	Timeout time.Duration
}

func LimitsFromConfig(c config.IngestConfig) Limits {
	return Limits{MaxBytes: c.MaxBytes, MaxPages: c.MaxPages, Timeout: c.Timeout}
}

// Document is one upload. Filename and ContentType are hints; the bytes win
// when they carry a recognizable signature.
type Document struct {
	Data        []byte
	Filename    string
	ContentType string
	// Pages selects PDF pages, e.g. "1-3,7". Empty means all.
	Pages string
}

type Result struct {
	Text       string `json:"text"`
	Kind       string `json:"kind"`
	Bytes      int    `json:"bytes"`
	Pages      int    `json:"pages,omitempty"`
	TotalPages int    `json:"total_pages,omitempty"`
}

type Extractor struct {
	Limits Limits
	Logger *logger.Logger
}

func New(limits Limits, log *logger.Logger) *Extractor {
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = 20 << 20
	}
	if limits.MaxPages <= 0 {
		limits.MaxPages = 20
	}
	if limits.Timeout <= 0 {
		limits.Timeout = time.Minute
	}
	return &Extractor{Limits: limits, Logger: logger.OrNop(log)}
}

// DecodeBase64 decodes an upload, accepting data: URLs.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, apperr.Configuration("data_base64", "required")
	}
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i != -1 {
			s = s[i+1:]
		}
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, apperr.Configuration("data_base64", fmt.Sprintf("invalid base64: %v", err))
	}
	return b, nil
}

// Detect reports the document kind, or "" when it is not supported.
func Detect(doc Document) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(doc.Filename), "."))
	ctype := strings.ToLower(doc.ContentType)
	if strings.HasPrefix(string(doc.Data), "%PDF-") || ext == "pdf" || strings.Contains(ctype, "pdf") {
		return KindPDF
	}
	if ext == "html" || ext == "htm" || strings.Contains(ctype, "html") {
		return KindHTML
	}
	head := strings.ToLower(string(doc.Data[:min(len(doc.Data), 1024)]))
	if strings.Contains(head, "<html") || strings.Contains(head, "<body") || strings.HasPrefix(strings.TrimSpace(head), "<!doctype html") {
		return KindHTML
	}
	if textExts[ext] || strings.HasPrefix(ctype, "text/") || strings.Contains(ctype, "json") || strings.Contains(ctype, "yaml") {
		return KindText
	}
	if ext == "" && ctype == "" && utf8.Valid(doc.Data) {
		return KindText
	}
	return ""
}

// Extract converts doc to text. Oversized, unsupported, unreadable or empty
// documents are configuration errors.
func (e *Extractor) Extract(ctx context.Context, doc Document) (Result, error) {
	if len(doc.Data) == 0 {
		return Result{}, apperr.Configuration("document", "empty upload")
	}
	if int64(len(doc.Data)) > e.Limits.MaxBytes {
		return Result{}, apperr.Configuration("document", fmt.Sprintf("file too large: %d bytes > limit %d", len(doc.Data), e.Limits.MaxBytes))
	}

	res := Result{Kind: Detect(doc), Bytes: len(doc.Data)}
	var err error
	switch res.Kind {
	case KindPDF:
		res.Text, res.Pages, res.TotalPages, err = e.pdfText(ctx, doc.Data, doc.Pages)
	case KindHTML:
		res.Text, err = HTMLToText(strings.NewReader(string(doc.Data)))
	case KindText:
		res.Text = strings.TrimSpace(strings.ReplaceAll(string(doc.Data), "\r\n", "\n"))
	default:
		return Result{}, apperr.Configuration("document", "unsupported file type; provide PDF, HTML or text")
	}
	if err != nil {
		return Result{}, err
	}
	if res.Text == "" {
		return Result{}, apperr.Configuration("document", "no extractable text")
	}
	e.Logger.Info("document ingested", "kind", res.Kind, "bytes", res.Bytes, "pages", res.Pages, "chars", len(res.Text))
	return res, nil
}

// ExtractFile reads and converts a local file.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, apperr.Configuration("file", err.Error())
	}
	if info.Size() > e.Limits.MaxBytes {
		return Result{}, apperr.Configuration("file", fmt.Sprintf("file too large: %d bytes > limit %d", info.Size(), e.Limits.MaxBytes))
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	return e.Extract(ctx, Document{Data: b, Filename: filepath.Base(path)})
}

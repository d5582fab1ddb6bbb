package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	pdfx "github.com/ledongthuc/pdf"

	"github.com/example/control-assessor/internal/apperr"
)

var errPDFTimeout = errors.New("pdf extraction timeout")

func (e *Extractor) pdfText(ctx context.Context, data []byte, pages string) (text string, used, total int, err error) {
	// the parser panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Configuration("document", fmt.Sprintf("unreadable pdf: %v", r))
		}
	}()

	r, err := pdfx.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, 0, apperr.Configuration("document", fmt.Sprintf("unreadable pdf: %v", err))
	}
	total = r.NumPage()
	selected := expandPages(pages, total)
	if len(selected) == 0 {
		for i := 1; i <= total; i++ {
			selected = append(selected, i)
		}
	}
	if len(selected) > e.Limits.MaxPages {
		selected = selected[:e.Limits.MaxPages]
	}

	deadline := time.Now().Add(e.Limits.Timeout)
	var out strings.Builder
	for _, n := range selected {
		if err := ctx.Err(); err != nil {
			return "", 0, total, err
		}
		if time.Now().After(deadline) {
			return "", 0, total, errPDFTimeout
		}
		p := r.Page(n)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			e.Logger.Debug("pdf page skipped", "page", n, "error", err)
			continue
		}
		if t := strings.TrimSpace(txt); t != "" {
			out.WriteString(t)
			out.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(out.String()), len(selected), total, nil
}

// expandPages parses a page selection such as "1-3,7", dropping pages
// outside 1..total and duplicates.
func expandPages(spec string, total int) []int {
	var out []int
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return out
	}
	seen := map[int]struct{}{}
	add := func(n int) {
		if n < 1 || n > total {
			return
		}
		if _, ok := seen[n]; !ok {
			out = append(out, n)
			seen[n] = struct{}{}
		}
	}
	for _, p := range strings.Split(spec, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(p, "-"); ok {
			a, _ := strconv.Atoi(strings.TrimSpace(lo))
			b, _ := strconv.Atoi(strings.TrimSpace(hi))
			if a > b {
				a, b = b, a
			}
			for i := a; i <= b; i++ {
				add(i)
			}
			continue
		}
		n, _ := strconv.Atoi(p)
		add(n)
	}
	return out
}

// Package report renders a populated assessment for display and download.
package report

import (
	"bytes"
	"encoding/csv"
	"strings"

	"github.com/example/control-assessor/internal/models"
)

const (
	ArtifactName        = "control_assessment.csv"
	ArtifactContentType = "text/csv"
)

// Format concatenates the eight report sections under fixed headers, in
// pipeline order. Absent fields render as empty sections.
func Format(a models.Assessment) string {
	var b strings.Builder
	for i, f := range models.ReportFields() {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## ")
		b.WriteString(f.Title())
		b.WriteString(":\n")
		b.WriteString(a.Value(f))
	}
	return b.String()
}

// FormatPartial renders only the sections that have been produced, in
// pipeline order. It is "" when no stage has completed.
func FormatPartial(a models.Assessment) string {
	var b strings.Builder
	for _, f := range models.ReportFields() {
		if !a.Has(f) {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## ")
		b.WriteString(f.Title())
		b.WriteString(":\n")
		b.WriteString(a.Value(f))
	}
	return b.String()
}

// Headers returns the section headers Format emits, in order.
func Headers() []string {
	fs := models.ReportFields()
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = "## " + f.Title() + ":"
	}
	return out
}

// Artifact is a downloadable file; the bytes are opaque to the caller.
type Artifact struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// CSV exports the description and the eight sections as one row per field.
func CSV(a models.Assessment) (Artifact, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"section", "field", "content"}); err != nil {
		return Artifact{}, err
	}
	for _, f := range models.Fields() {
		if err := w.Write([]string{f.Title(), f.Key(), a.Value(f)}); err != nil {
			return Artifact{}, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Artifact{}, err
	}
	return Artifact{Name: ArtifactName, ContentType: ArtifactContentType, Data: buf.Bytes()}, nil
}

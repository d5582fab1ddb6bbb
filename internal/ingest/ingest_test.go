package ingest

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/control-assessor/internal/apperr"
)

const controlHTML = `<!doctype html>
<html><head><title>Policy</title><style>p{color:red}</style></head>
<body>
<h1>Wire screening</h1>
<p>All outgoing wires are screened against the OFAC SDN list.</p>
<script>alert("x")</script>
<ul><li>Matches are held</li><li>Reviewed   within 4 hours</li></ul>
</body></html>`

func TestHTMLToText(t *testing.T) {
	got, err := HTMLToText(strings.NewReader(controlHTML))
	require.NoError(t, err)
	want := "Wire screening\nAll outgoing wires are screened against the OFAC SDN list.\nMatches are held\nReviewed within 4 hours"
	assert.Equal(t, want, got)
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		doc  Document
		want string
	}{
		{"pdf magic", Document{Data: []byte("%PDF-1.7\n...")}, KindPDF},
		{"pdf ext", Document{Data: []byte("x"), Filename: "policy.PDF"}, KindPDF},
		{"html ctype", Document{Data: []byte("x"), ContentType: "text/html; charset=utf-8"}, KindHTML},
		{"html sniff", Document{Data: []byte("<html><body>hi</body></html>"), Filename: "upload.bin"}, KindHTML},
		{"markdown", Document{Data: []byte("# Control"), Filename: "control.md"}, KindText},
		{"text ctype", Document{Data: []byte("x"), ContentType: "text/plain"}, KindText},
		{"bare utf8", Document{Data: []byte("Duplicate payments are rejected.")}, KindText},
		{"binary", Document{Data: []byte{0xff, 0xfe, 0x00}, Filename: "sheet.xlsx"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Detect(tc.doc))
		})
	}
}

func TestExtract(t *testing.T) {
	e := New(Limits{MaxBytes: 1024}, nil)
	ctx := context.Background()

	res, err := e.Extract(ctx, Document{Data: []byte(controlHTML), Filename: "control.html"})
	require.NoError(t, err)
	assert.Equal(t, KindHTML, res.Kind)
	assert.True(t, strings.HasPrefix(res.Text, "Wire screening\n"))

	res, err = e.Extract(ctx, Document{Data: []byte("  Payments over $20 million\r\nare escalated.\n"), Filename: "c.txt"})
	require.NoError(t, err)
	assert.Equal(t, "Payments over $20 million\nare escalated.", res.Text)
	assert.Equal(t, KindText, res.Kind)
}

func TestExtractRejects(t *testing.T) {
	e := New(Limits{MaxBytes: 16}, nil)
	ctx := context.Background()
	cases := map[string]Document{
		"empty":       {},
		"too large":   {Data: []byte(strings.Repeat("a", 17)), Filename: "a.txt"},
		"unsupported": {Data: []byte{0x50, 0x4b, 0x03, 0x04, 0xff}, Filename: "book.xlsx"},
		"blank text":  {Data: []byte(" \n\t "), Filename: "a.txt"},
		"bad pdf":     {Data: []byte("%PDF-1.4 garbage"), Filename: "a.pdf"},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.Extract(ctx, doc)
			require.Error(t, err)
			assert.True(t, apperr.IsConfiguration(err), err)
		})
	}
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "control.md")
	require.NoError(t, os.WriteFile(path, []byte("Every wire is checked for duplicates."), 0o600))

	res, err := New(Limits{}, nil).ExtractFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Every wire is checked for duplicates.", res.Text)

	_, err = New(Limits{}, nil).ExtractFile(context.Background(), filepath.Join(dir, "missing.txt"))
	assert.True(t, apperr.IsConfiguration(err))
}

func TestDecodeBase64(t *testing.T) {
	raw := []byte("screened against OFAC")
	enc := base64.StdEncoding.EncodeToString(raw)

	got, err := DecodeBase64(enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeBase64("data:text/plain;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = DecodeBase64("%%%")
	assert.True(t, apperr.IsConfiguration(err))
	_, err = DecodeBase64("")
	assert.True(t, apperr.IsConfiguration(err))
}

func TestExpandPages(t *testing.T) {
	cases := []struct {
		spec  string
		total int
		want  []int
	}{
		{"", 5, nil},
		{"1-3,7", 5, []int{1, 2, 3}},
		{"4-2, 3", 5, []int{2, 3, 4}},
		{"0,1,1,x", 2, []int{1}},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, expandPages(tc.spec, tc.total)); diff != "" {
			t.Errorf("expandPages(%q) (-want +got):\n%s", tc.spec, diff)
		}
	}
}

package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildPDF writes a minimal PDF with one Helvetica text line per page. An
// empty string produces a page without a content stream.
func buildPDF(t *testing.T, pages []string) []byte {
	t.Helper()

	var objects []string
	// 1: catalog, 2: pages, 3: font, then page/content pairs
	kids := make([]string, len(pages))
	pageObjs := make([]string, 0, len(pages)*2)
	next := 4
	for i, text := range pages {
		pageID := next
		kids[i] = fmt.Sprintf("%d 0 R", pageID)
		if text == "" {
			pageObjs = append(pageObjs,
				"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> >>")
			next++
			continue
		}
		contentID := pageID + 1
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		pageObjs = append(pageObjs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentID),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
		next += 2
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	objects = append(objects, pageObjs...)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestLoad(t *testing.T) {
	loader := NewLoader()

	t.Run("Missing file is not found", func(t *testing.T) {
		_, err := loader.Load(filepath.Join(t.TempDir(), "missing.pdf"))
		require.Error(t, err)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("Unsupported extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.exe")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		_, err := loader.Load(path)
		assert.ErrorContains(t, err, "unsupported file format")
	})

	t.Run("Plain text from disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("Paris is the capital of France."), 0o644))
		text, err := loader.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "Paris is the capital of France.", text)
	})

	t.Run("PDF from disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "geo.pdf")
		require.NoError(t, os.WriteFile(path, buildPDF(t, []string{"Paris is the capital of France"}), 0o644))
		text, err := loader.Load(path)
		require.NoError(t, err)
		assert.Contains(t, text, "Paris")
	})
}

func TestParsePDF(t *testing.T) {
	t.Run("Pages are concatenated in order", func(t *testing.T) {
		text, err := parsePDF(buildPDF(t, []string{"Madrid is in Spain", "Canberra is in Australia"}))
		require.NoError(t, err)

		madrid := strings.Index(text, "Madrid")
		canberra := strings.Index(text, "Canberra")
		require.GreaterOrEqual(t, madrid, 0)
		require.GreaterOrEqual(t, canberra, 0)
		assert.Less(t, madrid, canberra)
	})

	t.Run("Page without text contributes nothing", func(t *testing.T) {
		text, err := parsePDF(buildPDF(t, []string{"", "Lisbon is in Portugal"}))
		require.NoError(t, err)
		assert.Contains(t, text, "Lisbon")
	})

	t.Run("Garbage is an error", func(t *testing.T) {
		_, err := parsePDF([]byte("not a pdf"))
		assert.Error(t, err)
	})
}

func TestParseDOCX(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Rome is the capital</w:t></w:r><w:r><w:t xml:space="preserve"> of Italy.</w:t></w:r></w:p>
<w:p><w:r><w:t>Berlin is the capital of Germany.</w:t></w:r></w:p>
</w:body></w:document>`
	rels := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`
	data := buildZip(t, map[string]string{
		"word/document.xml":            doc,
		"word/_rels/document.xml.rels": rels,
	})

	text, err := NewLoader().LoadBytes(data, ".docx")
	require.NoError(t, err)
	assert.Equal(t, "Rome is the capital of Italy.\nBerlin is the capital of Germany.", text)
}

func TestParsePPTX(t *testing.T) {
	slide := func(s string) string {
		return `<p:sld xmlns:p="p" xmlns:a="a"><p:txBody><a:p><a:r><a:t>` + s + `</a:t></a:r></a:p></p:txBody></p:sld>`
	}
	data := buildZip(t, map[string]string{
		"ppt/slides/slide10.xml":           slide("tenth"),
		"ppt/slides/slide2.xml":            slide("second"),
		"ppt/slides/slide1.xml":            slide("first"),
		"ppt/slides/_rels/slide1.xml.rels": "<Relationships/>",
	})

	text, err := NewLoader().LoadBytes(data, ".pptx")
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond\n\ntenth", text)
}

func TestParseSpreadsheet(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "country"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "capital"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Japan"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "Tokyo"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	text, err := NewLoader().LoadBytes(buf.Bytes(), ".xlsx")
	require.NoError(t, err)
	assert.Contains(t, text, "Sheet: Sheet1")
	assert.Contains(t, text, "Japan\tTokyo")
}

func TestParseMarkdown(t *testing.T) {
	src := "# Capitals\n\nThe capital of *Egypt* is **Cairo**.\n\n- Kenya: Nairobi\n- Peru: Lima\n"

	text, err := NewLoader().LoadBytes([]byte(src), ".md")
	require.NoError(t, err)
	assert.Contains(t, text, "Capitals")
	assert.Contains(t, text, "The capital of Egypt is Cairo.")
	assert.Contains(t, text, "Kenya: Nairobi")
	assert.NotContains(t, text, "*")
	assert.NotContains(t, text, "#")
}

func TestExtractTextFromXML(t *testing.T) {
	t.Run("Ignores non text elements", func(t *testing.T) {
		text, err := extractTextFromXML(`<a><b>skip</b><t>keep</t></a>`)
		require.NoError(t, err)
		assert.Equal(t, "keep", text)
	})

	t.Run("Malformed xml", func(t *testing.T) {
		_, err := extractTextFromXML(`<a><t>open`)
		assert.Error(t, err)
	})
}

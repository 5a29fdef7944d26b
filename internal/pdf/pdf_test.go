package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// onePagePDF builds a single page PDF that shows text in Helvetica.
func onePagePDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

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

func TestValidate(t *testing.T) {
	if err := Validate(onePagePDF("Hello")); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}
	if err := Validate([]byte("not a pdf")); err == nil {
		t.Error("Validate accepted garbage")
	}
}

func TestPageCount(t *testing.T) {
	n, err := PageCount(onePagePDF("Hello"))
	if err != nil {
		t.Fatalf("PageCount: %v", err)
	}
	if n != 1 {
		t.Errorf("PageCount = %d, want 1", n)
	}
}

func TestExtractText(t *testing.T) {
	text, err := ExtractText(onePagePDF("Jane fell"))
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if !strings.Contains(text, "Jane fell") {
		t.Errorf("ExtractText = %q, want it to contain %q", text, "Jane fell")
	}

	if _, err := ExtractText([]byte("garbage")); err == nil {
		t.Error("ExtractText accepted garbage")
	}
}

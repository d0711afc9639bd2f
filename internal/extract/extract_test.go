package extract_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/loomworks/loom/internal/extract"
)

func TestPlainText(t *testing.T) {
	text, err := extract.Text("text/plain; charset=utf-8", strings.NewReader("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello world" {
		t.Errorf("want %q got %q", "hello world", text)
	}
}

func TestJSONPassthrough(t *testing.T) {
	text, err := extract.Text("application/json", strings.NewReader(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if text != `{"a":1}` {
		t.Errorf("got %q", text)
	}
}

func TestHTML(t *testing.T) {
	page := `<html><head><title>Greeting</title><style>p{color:red}</style></head>
<body><h1>Hi</h1><p>hello <b>world</b></p><script>var x=1;</script></body></html>`
	text, err := extract.Text("text/html", strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(text, "var x") || strings.Contains(text, "color:red") {
		t.Errorf("script/style leaked into text: %q", text)
	}
	if !strings.Contains(text, "hello world") {
		t.Errorf("expected body text, got %q", text)
	}
	if strings.Contains(text, "Greeting") {
		t.Errorf("title should not appear in body text: %q", text)
	}
}

func TestUnsupportedType(t *testing.T) {
	_, err := extract.Text("application/octet-stream", strings.NewReader("binary"))
	var unsupported *extract.ErrUnsupportedType
	if !errors.As(err, &unsupported) {
		t.Fatalf("want ErrUnsupportedType, got %v", err)
	}
}

func TestDOCX(t *testing.T) {
	doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t> docx</w:t></w:r></w:p>
    <w:p><w:r><w:t>second line</w:t></w:r></w:p>
  </w:body>
</w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte(doc)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	text, err := extract.Text("application/vnd.openxmlformats-officedocument.wordprocessingml.document", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "Hello docx") || !strings.Contains(text, "second line") {
		t.Errorf("got %q", text)
	}
}

func TestDOCXMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.Create("other.xml")
	zw.Close()

	if _, err := extract.Text("application/vnd.openxmlformats-officedocument.wordprocessingml.document", &buf); err == nil {
		t.Fatal("expected error for docx without word/document.xml")
	}
}

package extract

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestText_Plain(t *testing.T) {
	path := writeFile(t, "notes.txt", "plain text body")

	got, err := New().Text(path)
	if err != nil {
		t.Fatalf("Text() = %v", err)
	}
	if got != "plain text body" {
		t.Errorf("Text() = %q", got)
	}
}

func TestText_Markdown(t *testing.T) {
	path := writeFile(t, "readme.md", "# Title\n\nSome content.")

	got, err := New().Text(path)
	if err != nil {
		t.Fatalf("Text() = %v", err)
	}
	if !strings.Contains(got, "Some content.") {
		t.Errorf("Text() = %q, missing body", got)
	}
}

func TestText_HTML(t *testing.T) {
	html := `<html><head><title>Doc</title></head><body>
		<script>var ignored = true;</script>
		<article><p>Visible paragraph one.</p><p>Visible paragraph two.</p></article>
	</body></html>`
	path := writeFile(t, "page.html", html)

	got, err := New().Text(path)
	if err != nil {
		t.Fatalf("Text() = %v", err)
	}
	if !strings.Contains(got, "Visible paragraph one.") {
		t.Errorf("Text() = %q, missing article text", got)
	}
	if strings.Contains(got, "var ignored") {
		t.Errorf("Text() leaked script content: %q", got)
	}
}

func TestText_Unsupported(t *testing.T) {
	path := writeFile(t, "binary.exe", "MZ")

	_, err := New().Text(path)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Text() = %v, want ErrUnsupported", err)
	}
}

func TestText_MissingFile(t *testing.T) {
	_, err := New().Text(filepath.Join(t.TempDir(), "absent.txt"))
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("Text() = %v, want ErrUnreadable", err)
	}
}

func TestText_CorruptPDF(t *testing.T) {
	path := writeFile(t, "broken.pdf", "not a pdf at all")

	_, err := New().Text(path)
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("Text() = %v, want ErrUnreadable", err)
	}
}

func TestSupported(t *testing.T) {
	e := New()
	for _, ext := range []string{".txt", ".md", ".html", ".pdf", ".PDF"} {
		if !e.Supported(ext) {
			t.Errorf("Supported(%q) = false, want true", ext)
		}
	}
	if e.Supported(".exe") {
		t.Error("Supported(.exe) = true, want false")
	}
}

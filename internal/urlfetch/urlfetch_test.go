package urlfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExtractText_StripsTagsAndScripts(t *testing.T) {
	html := `<html><head><style>.x{color:red}</style></head>
<body><script>alert(1)</script><h1>Senior Go Engineer</h1><p>We need someone with 5 years experience.</p></body></html>`

	got := ExtractText(html)
	if strings.Contains(got, "<") || strings.Contains(got, "alert") || strings.Contains(got, "color:red") {
		t.Errorf("ExtractText left markup behind: %q", got)
	}
	if !strings.Contains(got, "Senior Go Engineer") {
		t.Errorf("ExtractText dropped content: %q", got)
	}
}

func TestExtractText_TruncatesToMaxChars(t *testing.T) {
	html := "<p>" + strings.Repeat("a", MaxTextChars+500) + "</p>"
	got := ExtractText(html)
	if len([]rune(got)) > MaxTextChars {
		t.Errorf("ExtractText length = %d, want <= %d", len([]rune(got)), MaxTextChars)
	}
}

func TestHTTPFetcher_FetchText_ReturnsBodyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>Backend role at Acme</p></body></html>"))
	}))
	defer srv.Close()

	f := New()
	text, err := f.FetchText(context.Background(), srv.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("FetchText: %v", err)
	}
	if !strings.Contains(text, "Backend role at Acme") {
		t.Errorf("FetchText = %q", text)
	}
}

func TestHTTPFetcher_FetchText_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New()
	if _, err := f.FetchText(context.Background(), srv.URL, 2*time.Second); err == nil {
		t.Error("expected an error for a 404 response")
	}
}

// Package docx implements the document-extractor external interface: pulling
// a best-effort prefill dict and an optional photo out of an uploaded DOCX
// file. Field classification is intentionally shallow — this package is a
// thin boundary around the zip/XML container format, not a layout engine.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/cvwizard/backend/internal/model"
)

// Extractor is the document-extractor external interface (§2 C-table:
// "Document extractor") the wizard orchestrator depends on during ingest.
type Extractor interface {
	// ExtractPrefill reads a staged CVRecord out of docxBytes. It never
	// returns an error for a structurally valid zip with no recognizable
	// content — an empty CVRecord is a legitimate result.
	ExtractPrefill(docxBytes []byte) (model.CVRecord, error)

	// ExtractFirstPhoto returns the bytes of the first embedded image found
	// under word/media, or ok=false if the document has none.
	ExtractFirstPhoto(docxBytes []byte) (data []byte, contentType string, ok bool, err error)
}

// WordExtractor implements Extractor against the OOXML WordprocessingML
// format: a zip archive with document text at word/document.xml and any
// embedded images under word/media/.
type WordExtractor struct{}

// New returns the default Extractor.
func New() *WordExtractor {
	return &WordExtractor{}
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9 ().\-]{7,}[0-9]`)
)

// documentXML mirrors just enough of WordprocessingML to pull run text out
// in document order; everything else (styles, formatting, tables-as-layout)
// is ignored.
type documentXML struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text []string `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

func (w *WordExtractor) ExtractPrefill(docxBytes []byte) (model.CVRecord, error) {
	zr, err := zip.NewReader(bytes.NewReader(docxBytes), int64(len(docxBytes)))
	if err != nil {
		return model.CVRecord{}, fmt.Errorf("docx: open archive: %w", err)
	}

	f, err := findZipFile(zr, "word/document.xml")
	if err != nil {
		return model.CVRecord{}, fmt.Errorf("docx: missing document.xml: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return model.CVRecord{}, fmt.Errorf("docx: read document.xml: %w", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return model.CVRecord{}, fmt.Errorf("docx: read document.xml: %w", err)
	}

	var doc documentXML
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return model.CVRecord{}, fmt.Errorf("docx: parse document.xml: %w", err)
	}

	var paragraphs []string
	for _, p := range doc.Body.Paragraphs {
		var b strings.Builder
		for _, r := range p.Runs {
			for _, t := range r.Text {
				b.WriteString(t)
			}
		}
		text := strings.TrimSpace(b.String())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	return buildPrefill(paragraphs), nil
}

// buildPrefill applies a shallow heuristic over the paragraph stream: the
// first non-contact line is taken as the full name, email/phone are
// pattern-matched anywhere, and everything else becomes free-text address
// lines. Richer section classification (work experience, education, ...) is
// left to the wizard's own tailoring prompts once the candidate confirms
// contact details — the extractor only needs to get the candidate started.
func buildPrefill(paragraphs []string) model.CVRecord {
	var cv model.CVRecord

	for _, line := range paragraphs {
		if cv.Contact.Email == "" {
			if m := emailPattern.FindString(line); m != "" {
				cv.Contact.Email = m
				continue
			}
		}
		if cv.Contact.Phone == "" {
			if m := phonePattern.FindString(line); m != "" {
				cv.Contact.Phone = m
				continue
			}
		}
		if cv.Contact.FullName == "" && !looksLikeAddressLine(line) {
			cv.Contact.FullName = line
			continue
		}
		cv.Contact.AddressLines = append(cv.Contact.AddressLines, line)
	}

	return cv
}

func looksLikeAddressLine(line string) bool {
	if emailPattern.MatchString(line) || phonePattern.MatchString(line) {
		return true
	}
	digits := 0
	for _, r := range line {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits > 2
}

func (w *WordExtractor) ExtractFirstPhoto(docxBytes []byte) ([]byte, string, bool, error) {
	zr, err := zip.NewReader(bytes.NewReader(docxBytes), int64(len(docxBytes)))
	if err != nil {
		return nil, "", false, fmt.Errorf("docx: open archive: %w", err)
	}

	var mediaFiles []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "word/media/") && !f.FileInfo().IsDir() {
			mediaFiles = append(mediaFiles, f)
		}
	}
	if len(mediaFiles) == 0 {
		return nil, "", false, nil
	}

	sort.Slice(mediaFiles, func(i, j int) bool { return mediaFiles[i].Name < mediaFiles[j].Name })
	first := mediaFiles[0]

	rc, err := first.Open()
	if err != nil {
		return nil, "", false, fmt.Errorf("docx: open embedded media: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", false, fmt.Errorf("docx: read embedded media: %w", err)
	}

	return data, mediaContentType(first.Name), true, nil
}

func mediaContentType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".bmp"):
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}

func findZipFile(zr *zip.Reader, name string) (*zip.File, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("not found: %s", name)
}

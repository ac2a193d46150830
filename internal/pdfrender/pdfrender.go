// Package pdfrender implements the PDF-renderer external interface: HTML CV
// or cover-letter markup in, validated PDF bytes out, via a headless Chrome
// instance driven by chromedp. Template authoring is out of scope — this
// package only owns the render call and the page-count contract.
package pdfrender

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Kind names which page-count contract a render must satisfy.
type Kind string

const (
	KindCV           Kind = "cv"
	KindCoverLetter  Kind = "cover_letter"
)

// pageCount is the strict contract per kind (§1: "two-page PDF CV and
// (optionally) a one-page cover letter").
var pageCount = map[Kind]int{
	KindCV:          2,
	KindCoverLetter: 1,
}

// ErrPageCountMismatch is returned when the rendered document does not
// satisfy its kind's page-count contract.
type ErrPageCountMismatch struct {
	Kind     Kind
	Want     int
	Got      int
}

func (e *ErrPageCountMismatch) Error() string {
	return fmt.Sprintf("pdfrender: %s expected %d page(s), got %d", e.Kind, e.Want, e.Got)
}

// ErrNotAPDF is returned when the renderer produced bytes without a PDF
// signature, indicating an upstream browser failure.
var ErrNotAPDF = fmt.Errorf("pdfrender: output missing %%PDF signature")

// Renderer is the PDF-renderer external interface.
type Renderer interface {
	Render(ctx context.Context, kind Kind, html string) ([]byte, error)
}

// ChromeRenderer drives a headless Chrome instance via chromedp, either
// spawned locally or attached to an already-running debug endpoint.
type ChromeRenderer struct {
	remoteDebugURL string
	timeout        time.Duration
}

// Option configures a ChromeRenderer.
type Option func(*ChromeRenderer)

// WithRemoteDebugURL points the renderer at an already-running Chrome
// instance instead of spawning a local one, mirroring the teacher's
// browser-relay attach flow.
func WithRemoteDebugURL(url string) Option {
	return func(r *ChromeRenderer) { r.remoteDebugURL = url }
}

// WithTimeout bounds a single render call. The spec leaves PDF rendering
// "bounded by renderer" (§5) rather than naming a fixed deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *ChromeRenderer) { r.timeout = d }
}

// New returns a ChromeRenderer that spawns its own headless Chrome process
// per render call unless WithRemoteDebugURL is given.
func New(opts ...Option) *ChromeRenderer {
	r := &ChromeRenderer{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ChromeRenderer) Render(ctx context.Context, kind Kind, html string) ([]byte, error) {
	renderCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if r.remoteDebugURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(renderCtx, r.remoteDebugURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(renderCtx, chromedp.DefaultExecAllocatorOptions[:]...)
	}
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html))

	var pdfBytes []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return fmt.Errorf("print to pdf: %w", err)
			}
			pdfBytes = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("pdfrender: render %s: %w", kind, err)
	}

	if err := validateSignature(pdfBytes); err != nil {
		return nil, err
	}

	want, ok := pageCount[kind]
	if ok {
		got := countPages(pdfBytes)
		if got != want {
			return nil, &ErrPageCountMismatch{Kind: kind, Want: want, Got: got}
		}
	}

	return pdfBytes, nil
}

func validateSignature(data []byte) error {
	if len(data) < 5 || string(data[:5]) != "%PDF-" {
		return ErrNotAPDF
	}
	return nil
}

// countPages counts "/Type /Page" object markers, excluding the single
// "/Type /Pages" tree-root dict that also contains that substring. PDF
// parsing in full is out of scope (Non-goal: document parsing heuristics) —
// this is a cheap, sufficient check for the two-page contract since the
// renderer controls the document's own structure end to end.
func countPages(data []byte) int {
	count := countPagesWithMarker(data, []byte("/Type /Page"))
	count += countPagesWithMarker(data, []byte("/Type/Page"))
	return count
}

func countPagesWithMarker(haystack, needle []byte) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); {
		idx := indexFrom(haystack, needle, i)
		if idx < 0 {
			break
		}
		next := idx + len(needle)
		if next < len(haystack) && haystack[next] == 's' {
			i = next + 1
			continue
		}
		count++
		i = next
	}
	return count
}

func indexFrom(haystack, needle []byte, from int) int {
	for i := from; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

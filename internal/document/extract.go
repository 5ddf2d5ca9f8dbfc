// Package document turns uploaded CV files into plain text.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// Kind is a supported document format.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
	KindText Kind = "text"
)

var (
	// ErrUnsupported is returned for formats that cannot be read.
	ErrUnsupported = errors.New("unsupported document type")
	// ErrEmpty is returned when no text could be extracted.
	ErrEmpty = errors.New("document contains no readable text")
	// ErrTooLarge is returned when the document exceeds the byte limit.
	ErrTooLarge = errors.New("document too large")
)

// Limits bound extraction. Zero values disable a bound.
type Limits struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
	MaxChars int   `mapstructure:"max_chars"`
}

// Extractor reads documents within Limits.
type Extractor struct {
	Limits Limits
}

// NewExtractor returns an extractor with limits.
func NewExtractor(limits Limits) *Extractor {
	return &Extractor{Limits: limits}
}

// Extract detects the format of data and returns its text. The result is cut
// to MaxChars runes.
func (e *Extractor) Extract(name string, data []byte) (string, error) {
	if e != nil && e.Limits.MaxBytes > 0 && int64(len(data)) > e.Limits.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), e.Limits.MaxBytes)
	}

	var (
		text string
		err  error
	)
	switch kind := Detect(name, data); kind {
	case KindPDF:
		text, err = extractPDF(data)
	case KindDOCX:
		text, err = extractDOCX(data)
	case KindText:
		text = string(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, describe(name, data))
	}
	if err != nil {
		return "", err
	}

	text = normalize(text)
	if text == "" {
		return "", ErrEmpty
	}
	if e != nil && e.Limits.MaxChars > 0 && utf8.RuneCountInString(text) > e.Limits.MaxChars {
		text = string([]rune(text)[:e.Limits.MaxChars])
	}
	return text, nil
}

// Extract reads data with no limits.
func Extract(name string, data []byte) (string, error) {
	return (*Extractor)(nil).Extract(name, data)
}

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// Detect returns the document kind from magic bytes, then the file extension.
// It returns "" when the format is unknown.
func Detect(name string, data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return KindPDF
	case bytes.HasPrefix(data, zipMagic):
		if strings.EqualFold(filepath.Ext(name), ".docx") || bytes.Contains(data, []byte("word/")) {
			return KindDOCX
		}
		return ""
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".text":
		if utf8.Valid(data) {
			return KindText
		}
		return ""
	case ".pdf", ".docx":
		return ""
	}

	if len(data) > 0 && utf8.Valid(data) && strings.HasPrefix(http.DetectContentType(data), "text/plain") {
		return KindText
	}
	return ""
}

func describe(name string, data []byte) string {
	if ext := filepath.Ext(name); ext != "" {
		return ext
	}
	return http.DetectContentType(data)
}

func extractPDF(data []byte) (text string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("read pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}
	defer doc.Close()

	return docxText(doc.Editable().GetContent()), nil
}

var (
	paragraphEnd = regexp.MustCompile(`</w:p>|<w:br[^>]*/>|<w:tab[^>]*/>`)
	xmlTag       = regexp.MustCompile(`<[^>]+>`)
)

// docxText converts WordprocessingML body XML to plain text.
func docxText(content string) string {
	text := paragraphEnd.ReplaceAllStringFunc(content, func(tag string) string {
		if strings.HasPrefix(tag, "<w:tab") {
			return "\t"
		}
		return "\n"
	})
	text = xmlTag.ReplaceAllString(text, "")
	return xmlUnescaper.Replace(text)
}

var xmlUnescaper = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")

// normalize trims lines, drops control characters and collapses blank runs.
func normalize(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		b     strings.Builder
		blank int
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.Map(dropControl, line))
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func dropControl(r rune) rune {
	if r == '\t' {
		return r
	}
	if r < 0x20 || r == 0x7f {
		return -1
	}
	return r
}

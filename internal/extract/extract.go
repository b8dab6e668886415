// Package extract turns uploaded compliance documents (PDF, DOCX, plain text)
// into the text the analysis pipeline consumes.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText = "text/plain"
)

var (
	// ErrUnsupported is returned for payloads that are not PDF, DOCX or text.
	ErrUnsupported = errors.New("unsupported document type")
	// ErrEmpty is returned when nothing readable could be extracted.
	ErrEmpty = errors.New("no text extracted")
)

// Extracted is the text pulled from one document.
type Extracted struct {
	Text     string `json:"texto"`
	MimeType string `json:"mimeType"`
	Runes    int    `json:"caracteres"`
}

// FromBytes extracts text from an in-memory payload. The declared mime type
// is a hint; the content and file extension decide when it is missing or
// generic.
func FromBytes(ctx context.Context, data []byte, mimeType, fileName string) (Extracted, error) {
	if err := ctx.Err(); err != nil {
		return Extracted{}, err
	}
	kind := DetectMimeType(mimeType, fileName, data)

	var (
		text string
		err  error
	)
	switch kind {
	case MimePDF:
		text, err = extractPDF(data)
	case MimeDOCX:
		text, err = extractDOCX(data)
	case MimeText:
		if !utf8.Valid(data) {
			return Extracted{}, fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupported)
		}
		text = string(data)
	default:
		return Extracted{}, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
	if err != nil {
		return Extracted{}, fmt.Errorf("extract %s: %w", kind, err)
	}

	text = normalizeNewlines(text)
	if strings.TrimSpace(text) == "" {
		return Extracted{}, ErrEmpty
	}
	return Extracted{Text: text, MimeType: kind, Runes: utf8.RuneCountInString(text)}, nil
}

// DetectMimeType resolves the document kind from the declared type, the zip
// layout for OOXML payloads, and finally the file extension.
func DetectMimeType(mimeType, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch clean {
	case MimePDF, MimeDOCX, MimeText:
		return clean
	case "text/markdown", "text/csv":
		return MimeText
	}

	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return MimePDF
	}
	if isDOCXZip(data) {
		return MimeDOCX
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return MimePDF
	case ".docx":
		return MimeDOCX
	case ".txt", ".md":
		return MimeText
	}
	if clean == "" || clean == "application/octet-stream" {
		if sniffed := strings.Split(http.DetectContentType(data), ";")[0]; sniffed == MimeText {
			return MimeText
		}
	}
	return clean
}

// extractPDF recovers from panics raised by the pdf reader on malformed
// content streams.
func extractPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var docFile *zip.File
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("word/document.xml not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return docxText(rc)
}

// docxText keeps the character data of w:t runs and turns paragraph, break
// and tab elements into whitespace.
func docxText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
			if (t.Name.Local == "p" || t.Name.Local == "br") && b.Len() > 0 {
				b.WriteByte('\n')
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func isDOCXZip(data []byte) bool {
	if !bytes.HasPrefix(data, []byte("PK")) {
		return false
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			return true
		}
	}
	return false
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

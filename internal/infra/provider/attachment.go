package provider

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/martinvidela/chatforge/internal/infra/filestore"
)

// isImage reports whether a declared MIME type is an image.
func isImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

// documentTypes are the attachment types that push the OpenAI adapter onto
// the assistants protocol. Everything textual counts; images do not.
var documentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/json": true,
	"text/csv":         true,
}

// isDocument reports whether a declared MIME type is a document type
// (PDF, Word, plain text, JSON, CSV).
func isDocument(contentType string) bool {
	return documentTypes[contentType] || strings.HasPrefix(contentType, "text/")
}

func isPDF(contentType string) bool {
	return contentType == "application/pdf"
}

// imageErrorNotice is the marker substituted for an image whose stored bytes
// cannot be read back.
func imageErrorNotice(name string) string {
	return fmt.Sprintf("[Error processing image: %s]", name)
}

// fileErrorNotice is the marker substituted for a non-image attachment whose
// stored bytes cannot be read back.
func fileErrorNotice(name string) string {
	return fmt.Sprintf("[Error processing file: %s]", name)
}

// imageSkippedNotice is the placeholder used by adapters that never perform
// vision analysis.
func imageSkippedNotice(name string) string {
	return fmt.Sprintf("[Image attachment: %s — image analysis is not supported by this model]", name)
}

// unsupportedFileNotice is the placeholder for an attachment that is neither
// an image nor a document type; such files are never sent upstream.
func unsupportedFileNotice(name string) string {
	return fmt.Sprintf("[Attachment %s: file type not supported]", name)
}

func extractionFailedNotice(name string) string {
	return fmt.Sprintf("[Content of %s could not be extracted]", name)
}

// extractPDFText pulls the plain text out of a PDF. The pdf library panics on
// some malformed files, so the recover is part of the contract here.
func extractPDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf extraction panicked: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(raw), nil
}

// inlineTextFor renders a textual attachment as a labeled block for adapters
// that inline document content. PDF extraction is best-effort: on failure the
// block body is a bracketed notice instead of an error.
func inlineTextFor(att filestore.Descriptor, data []byte) string {
	body := string(data)
	if isPDF(att.ContentType) {
		text, err := extractPDFText(data)
		if err != nil {
			body = extractionFailedNotice(att.Filename)
		} else {
			body = text
		}
	}
	return fmt.Sprintf("[Content of %s]:\n%s", att.Filename, body)
}

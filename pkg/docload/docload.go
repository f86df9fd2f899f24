// Package docload turns source files into plain text plus the domain
// metadata the ingestion pipeline needs: content type, vehicle system,
// severity, model years, VIN patterns, and a title. Binary formats are
// out of scope; the corpus is release notes, specs, logs, repair notes
// and supplier documentation in text-based formats.
package docload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/drivetrace/backend/pkg/domain"
)

// SourceFile identifies a document to load. Path is interpreted by the
// Loader (filesystem path, object key).
type SourceFile struct {
	Name   string
	Path   string
	Loader FileLoader
}

// FileLoader fetches the raw bytes of a source file. Implementations may
// read from disk or object storage.
type FileLoader interface {
	GetFileBytes(ctx context.Context, file SourceFile) ([]byte, error)
}

// FileHash returns the hex sha256 of the raw file bytes. It is the
// idempotency key for ingestion.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ContentHash returns the hex sha256 of a chunk's text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ExtractText converts raw file bytes into plain text based on the file
// extension. Empty output is a MalformedDocumentError; so is an
// extension nothing here understands.
func ExtractText(filename string, data []byte) (string, error) {
	var (
		text string
		err  error
	)

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".log":
		text = string(data)
	case ".md", ".markdown":
		text = stripMarkdown(string(data))
	case ".csv":
		text, err = csvToText(data)
	case ".json":
		text, err = jsonToText(data)
	default:
		return "", &domain.MalformedDocumentError{
			Filename: filename,
			Reason:   fmt.Sprintf("unsupported file type %q", filepath.Ext(filename)),
		}
	}
	if err != nil {
		return "", &domain.MalformedDocumentError{Filename: filename, Reason: err.Error()}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", &domain.MalformedDocumentError{Filename: filename, Reason: "no text content"}
	}
	return text, nil
}

// csvToText renders each row as a " | "-joined line so column values stay
// adjacent to each other for lexical and vector search.
func csvToText(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	var lines []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		lines = append(lines, strings.Join(row, " | "))
	}
	return strings.Join(lines, "\n"), nil
}

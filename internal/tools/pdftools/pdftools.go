// Package pdftools provides the document functions the realtime model may
// call during a voice session.
//
// Two tools are exported via [NewTools]:
//   - "getPdfInfo": page count and text preview of the uploaded PDF.
//   - "uploadPdf": upload a local PDF to the backend.
//
// All handlers are safe for concurrent use.
package pdftools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/docent/internal/tools"
	"github.com/MrWong99/docent/pkg/backend"
)

// maxUploadBytes rejects files the backend would not accept anyway.
const maxUploadBytes = 64 << 20

// Backend is the subset of [backend.Client] the tools need.
type Backend interface {
	PDFInfo(ctx context.Context) (json.RawMessage, error)
	UploadPDF(ctx context.Context, f backend.File) (json.RawMessage, error)
}

// uploadArgs is the JSON-decoded input for "uploadPdf".
type uploadArgs struct {
	File uploadFile `json:"file" jsonschema:"description=PDF file to upload"`
}

type uploadFile struct {
	Path string `json:"path" jsonschema:"description=Path of the PDF inside the user's document directory"`
	Name string `json:"name,omitempty" jsonschema:"description=Filename reported to the server; defaults to the base name of path"`
}

// ErrNoDocumentDir is returned by [NewTools] when no sandbox directory is given.
var ErrNoDocumentDir = errors.New("pdftools: document directory must not be empty")

// NewTools returns the document tools bound to b. uploadPdf only reads .pdf
// files inside docDir; relative paths resolve against it.
func NewTools(b Backend, docDir string) ([]tools.Tool, error) {
	if docDir == "" {
		return nil, ErrNoDocumentDir
	}
	base, err := filepath.Abs(docDir)
	if err != nil {
		return nil, fmt.Errorf("pdftools: resolve document dir: %w", err)
	}
	return []tools.Tool{
		{
			Name:        "uploadPdf",
			Description: "Upload a PDF file to the server",
			Params:      uploadArgs{},
			Handler:     makeUploadHandler(b, base),
		},
		{
			Name:        "getPdfInfo",
			Description: "Get information about current PDF",
			Handler:     makeInfoHandler(b),
		},
	}, nil
}

// makeInfoHandler relays the backend's JSON body verbatim, including error
// bodies such as {"detail":"No PDF uploaded"}.
func makeInfoHandler(b Backend) tools.Handler {
	return func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		raw, err := b.PDFInfo(ctx)
		if raw != nil {
			return raw, nil
		}
		return nil, err
	}
}

func makeUploadHandler(b Backend, docDir string) tools.Handler {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var a uploadArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("pdftools: uploadPdf: failed to parse arguments: %w", err)
		}
		path, err := resolvePath(docDir, a.File.Path)
		if err != nil {
			return nil, err
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("pdftools: uploadPdf: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("pdftools: uploadPdf: %q is a directory", a.File.Path)
		}
		if info.Size() > maxUploadBytes {
			return nil, fmt.Errorf("pdftools: uploadPdf: %q exceeds %d bytes", a.File.Path, maxUploadBytes)
		}

		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("pdftools: uploadPdf: %w", err)
		}
		defer f.Close()

		name := a.File.Name
		if name == "" {
			name = filepath.Base(a.File.Path)
		}
		return b.UploadPDF(ctx, backend.File{Name: name, Content: f})
	}
}

// resolvePath maps the requested path into base. Both the lexical path and
// the path with symlinks evaluated must stay inside base, and the file the
// path finally names must carry a .pdf extension.
func resolvePath(base, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("pdftools: uploadPdf: file.path must not be empty")
	}
	joined := p
	if !filepath.IsAbs(p) {
		joined = filepath.Join(base, p)
	}
	joined = filepath.Clean(joined)
	if !within(base, joined) {
		return "", fmt.Errorf("pdftools: uploadPdf: path %q is outside the document directory", p)
	}

	realBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		return "", fmt.Errorf("pdftools: resolve document dir: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", fmt.Errorf("pdftools: uploadPdf: %w", err)
	}
	if !within(realBase, resolved) {
		return "", fmt.Errorf("pdftools: uploadPdf: path %q is outside the document directory", p)
	}
	if !strings.EqualFold(filepath.Ext(resolved), ".pdf") {
		return "", fmt.Errorf("pdftools: uploadPdf: %q is not a .pdf file", p)
	}
	return resolved, nil
}

func within(base, p string) bool {
	if !strings.HasSuffix(base, string(filepath.Separator)) {
		base += string(filepath.Separator)
	}
	return p+string(filepath.Separator) == base || strings.HasPrefix(p, base)
}

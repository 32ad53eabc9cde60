package backend

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strings"
)

// pdfContentType is declared on every uploaded part; the server rejects any
// other part type.
const pdfContentType = "application/pdf"

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeMultipart writes files as repeated parts of field.
func encodeMultipart(field string, files []File) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for _, f := range files {
		name := filepath.Base(f.Name)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="%s"; filename="%s"`, quoteEscaper.Replace(field), quoteEscaper.Replace(name)))
		h.Set("Content-Type", pdfContentType)
		pw, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create form file %s: %w", name, err)
		}
		if _, err := io.Copy(pw, f.Content); err != nil {
			return nil, "", fmt.Errorf("write form file %s: %w", name, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

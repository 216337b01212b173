package publisher

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// buildMultipart assembles the upload body. It is rebuilt on each attempt so
// retries never replay a drained reader.
func buildMultipart(req Request) ([]byte, string, error) {
	file, err := os.Open(req.ImagePath)
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(req.ImagePath)))
	header.Set("Content-Type", contentTypeFor(req.ImagePath))
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copy image: %w", err)
	}

	if url := strings.TrimSpace(req.URL); url != "" {
		if err := writer.WriteField("url", url); err != nil {
			return nil, "", fmt.Errorf("write url field: %w", err)
		}
	}
	for _, tag := range req.Tags {
		if err := writer.WriteField("tags", tag); err != nil {
			return nil, "", fmt.Errorf("write tags field: %w", err)
		}
	}
	if err := writer.WriteField("private", strconv.FormatBool(req.Private)); err != nil {
		return nil, "", fmt.Errorf("write private field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

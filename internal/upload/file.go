// Package upload prepares dataset files for sending and tracks upload progress.
package upload

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/genstats/client/internal/models"
)

// MaxFileSize bounds the payload accepted by ReadFile.
const MaxFileSize = 512 << 20

// ReadFile loads a dataset file from disk. Gzip-compressed input is
// decompressed and the ".gz" suffix dropped from the file name.
func ReadFile(path string) (models.UploadedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.UploadedFile{}, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return models.UploadedFile{}, fmt.Errorf("reading file: %w", err)
	}
	if len(data) > MaxFileSize {
		return models.UploadedFile{}, fmt.Errorf("file exceeds %d bytes", MaxFileSize)
	}

	name := filepath.Base(path)
	if isGzip(data) {
		data, err = decompress(data)
		if err != nil {
			return models.UploadedFile{}, fmt.Errorf("decompressing %s: %w", name, err)
		}
		name = strings.TrimSuffix(name, ".gz")
	}

	return models.UploadedFile{
		Name:        name,
		ContentType: ContentTypeFor(name),
		Payload:     data,
	}, nil
}

// ContentTypeFor infers the declared media type from the file extension.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", "":
		return models.DefaultContentType
	case ".tsv":
		return "text/tab-separated-values"
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	out, err := io.ReadAll(io.LimitReader(reader, MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxFileSize {
		return nil, fmt.Errorf("decompressed size exceeds %d bytes", MaxFileSize)
	}
	return out, nil
}

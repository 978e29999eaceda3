package controllers

import (
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"campusdesk_go/config"

	"github.com/google/uuid"
)

const defaultMaxFileSize = 10 << 20

func maxFileSize() int64 {
	if config.AppConfig != nil && config.AppConfig.MaxFileSize > 0 {
		return config.AppConfig.MaxFileSize
	}
	return defaultMaxFileSize
}

// readUpload loads a multipart file into memory after checking its extension and size.
func readUpload(fh *multipart.FileHeader, allowed ...string) ([]byte, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fh.Filename), "."))
	if len(allowed) > 0 {
		ok := false
		for _, a := range allowed {
			if ext == a {
				ok = true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("unsupported file type .%s (allowed: %s)", ext, strings.Join(allowed, ", "))
		}
	}
	limit := maxFileSize()
	if fh.Size > limit {
		return nil, fmt.Errorf("file exceeds %d MB", limit>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("cannot open file: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("cannot read file: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds %d MB", limit>>20)
	}
	return data, nil
}

// storedName prefixes the original base name with a short unique id.
func storedName(original string) string {
	base := filepath.Base(original)
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
	return uuid.NewString()[:8] + "_" + base
}

var imageExtensions = []string{"jpg", "jpeg", "png", "gif", "webp"}

package delivery

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"wagate/internal/domain"
)

// fetch downloads url into a MediaRef. Non-2xx responses are errors.
func (s *Service) fetch(ctx context.Context, rawURL string) (*domain.MediaRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch media %s: status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	if int64(len(data)) > s.maxMediaBytes {
		return nil, fmt.Errorf("media exceeds %d bytes", s.maxMediaBytes)
	}

	filename := s.filenameFromURL(resp.Request.URL)
	return &domain.MediaRef{
		MimeType: detectMimeType(resp.Header.Get("Content-Type"), filename, data),
		Data:     base64.StdEncoding.EncodeToString(data),
		Filename: filename,
	}, nil
}

func (s *Service) fromUpload(up *Upload) (*domain.MediaRef, error) {
	if int64(len(up.Data)) > s.maxMediaBytes {
		return nil, fmt.Errorf("media exceeds %d bytes", s.maxMediaBytes)
	}
	filename := up.Filename
	if filename == "" {
		filename = s.defaultFilename
	}
	return &domain.MediaRef{
		MimeType: detectMimeType(up.MimeType, filename, up.Data),
		Data:     base64.StdEncoding.EncodeToString(up.Data),
		Filename: filename,
	}, nil
}

func (s *Service) filenameFromURL(u *url.URL) string {
	if u == nil {
		return s.defaultFilename
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return s.defaultFilename
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return base
}

// detectMimeType prefers the declared type, then the file extension, then
// content sniffing.
func detectMimeType(declared, filename string, data []byte) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	if ext := path.Ext(filename); ext != "" {
		if mt := mime.TypeByExtension(strings.ToLower(ext)); mt != "" {
			mt, _, _ = strings.Cut(mt, ";")
			return mt
		}
	}
	mt, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return mt
}

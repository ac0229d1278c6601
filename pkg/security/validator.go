package security

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
)

// Validator guards remote fetches: which URLs may be fetched and how large
// a payload may grow
type Validator struct {
	maxDownloadSize int64
	allowedSchemes  map[string]bool
}

// NewValidator creates a new security validator
func NewValidator(maxDownloadSize int64, schemes ...string) *Validator {
	if len(schemes) == 0 {
		schemes = []string{"http", "https", "s3"}
	}
	allowed := make(map[string]bool, len(schemes))
	for _, s := range schemes {
		allowed[strings.ToLower(s)] = true
	}

	slog.Info("security_validator_init",
		"max_download_size_mb", maxDownloadSize/1024/1024,
		"schemes", schemes)

	return &Validator{
		maxDownloadSize: maxDownloadSize,
		allowedSchemes:  allowed,
	}
}

// ValidateURL parses raw and checks scheme and host
func (v *Validator) ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		slog.Error("security_url_validation_failed", "url", raw, "reason", "parse_error")
		return nil, fmt.Errorf("security: invalid url %q: %w", raw, err)
	}

	if !v.allowedSchemes[strings.ToLower(u.Scheme)] {
		slog.Error("security_url_validation_failed", "url", raw, "reason", "scheme", "scheme", u.Scheme)
		return nil, fmt.Errorf("security: scheme %q not allowed: %s", u.Scheme, raw)
	}

	if u.Host == "" {
		slog.Error("security_url_validation_failed", "url", raw, "reason", "empty_host")
		return nil, fmt.Errorf("security: url has no host: %s", raw)
	}

	return u, nil
}

// ValidateSize checks a declared payload size against the download limit.
// Negative sizes mean unknown and pass.
func (v *Validator) ValidateSize(size int64) error {
	if v.maxDownloadSize > 0 && size > v.maxDownloadSize {
		slog.Error("security_download_size_exceeded",
			"size_mb", size/1024/1024,
			"max_download_size_mb", v.maxDownloadSize/1024/1024)
		return fmt.Errorf("security: download size %d exceeds max %d", size, v.maxDownloadSize)
	}
	return nil
}

// LimitReader wraps r so reading past the download limit fails.
func (v *Validator) LimitReader(r io.Reader) io.Reader {
	if v.maxDownloadSize <= 0 {
		return r
	}
	return &limitedReader{r: r, remaining: v.maxDownloadSize, max: v.maxDownloadSize}
}

type limitedReader struct {
	r         io.Reader
	remaining int64
	max       int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, fmt.Errorf("security: download exceeds max %d bytes", l.max)
	}
	// Read one byte past the limit so an exact-size payload still succeeds.
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		slog.Error("security_download_size_exceeded", "max_download_size_mb", l.max/1024/1024)
		return n, fmt.Errorf("security: download exceeds max %d bytes", l.max)
	}
	return n, err
}

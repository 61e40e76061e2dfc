package media

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Kind is a best-effort guess at what a video URL points to. The resolver
// has the final say.
type Kind string

const (
	KindPage Kind = "page"
	KindHLS  Kind = "hls"
	KindDASH Kind = "dash"
	KindFile Kind = "file"
)

var fileExtensions = map[string]Kind{
	".m3u8": KindHLS,
	".mpd":  KindDASH,
	".mp4":  KindFile,
	".webm": KindFile,
	".mkv":  KindFile,
	".mov":  KindFile,
}

// Source is a validated video URL.
type Source struct {
	// URL is the normalized URL sent to the room as original_url
	URL string

	// Host is the lower-cased host name
	Host string

	Kind Kind
}

// ValidateURLs checks every URL and returns the valid sources, or an error
// listing every invalid one.
func ValidateURLs(rawURLs []string) ([]Source, error) {
	if len(rawURLs) == 0 {
		return nil, fmt.Errorf("no video urls specified")
	}

	var sources []Source
	var errors []string

	for _, raw := range rawURLs {
		src, err := ValidateURL(raw)
		if err != nil {
			errors = append(errors, err.Error())
			continue
		}
		sources = append(sources, src)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("url validation failed:\n  - %s", joinErrors(errors))
	}

	return sources, nil
}

// ValidateURL checks a single video URL. Scheme-less input such as
// "youtu.be/xyz" is treated as https.
func ValidateURL(raw string) (Source, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Source{}, fmt.Errorf("empty url")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return Source{}, fmt.Errorf("%s: %w", raw, err)
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return Source{}, fmt.Errorf("%s: unsupported scheme %q", raw, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Source{}, fmt.Errorf("%s: missing host", raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	kind := KindPage
	if k, ok := fileExtensions[strings.ToLower(path.Ext(u.Path))]; ok {
		kind = k
	}

	return Source{
		URL:  u.String(),
		Host: host,
		Kind: kind,
	}, nil
}

// joinErrors joins multiple error messages with newlines
func joinErrors(errors []string) string {
	var result strings.Builder
	for i, err := range errors {
		if i > 0 {
			result.WriteString("\n  - ")
		}
		result.WriteString(err)
	}
	return result.String()
}

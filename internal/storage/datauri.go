package storage

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultImageMIME is assumed for bare base64 payloads.
const DefaultImageMIME = "image/png"

var (
	ErrEmptyImage  = errors.New("storage: empty image reference")
	ErrInvalidData = errors.New("storage: invalid base64 image data")

	dataURIPattern = regexp.MustCompile(`^data:([A-Za-z0-9.+/-]+);base64,(.*)$`)
)

// InlineImage is a decoded data URI.
type InlineImage struct {
	MIME string
	Data []byte
}

// IsRemote reports whether ref is an absolute http(s) URL.
func IsRemote(ref string) bool {
	lower := strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// ParseDataURI decodes data:<mime>;base64,<payload>. A value without the
// data: header is decoded as bare base64 of DefaultImageMIME.
func ParseDataURI(ref string) (InlineImage, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return InlineImage{}, ErrEmptyImage
	}
	mime, payload := DefaultImageMIME, ref
	if m := dataURIPattern.FindStringSubmatch(ref); m != nil {
		mime, payload = strings.ToLower(m[1]), m[2]
	} else if strings.HasPrefix(strings.ToLower(ref), "data:") {
		return InlineImage{}, fmt.Errorf("%w: malformed data uri header", ErrInvalidData)
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return InlineImage{}, err
	}
	if len(data) == 0 {
		return InlineImage{}, ErrEmptyImage
	}
	return InlineImage{MIME: mime, Data: data}, nil
}

// EncodeDataURI renders data as a base64 data URI.
func EncodeDataURI(mime string, data []byte) string {
	if mime == "" {
		mime = DefaultImageMIME
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)
	if data, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return data, nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ".bin"
}

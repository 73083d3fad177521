package forms

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
)

// Signature is a decoded signature image.
type Signature struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// DecodeSignature accepts raw base64 (standard or URL alphabet, padded or
// not) or a data URI such as "data:image/png;base64,...". The payload must be
// a PNG or JPEG image; anything else is ErrInvalidSignature.
func DecodeSignature(payload string) (*Signature, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidSignature)
	}
	if strings.HasPrefix(payload, "data:") {
		_, encoded, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, fmt.Errorf("%w: malformed data URI", ErrInvalidSignature)
		}
		payload = encoded
	}
	payload = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, payload)

	raw, err := decodeBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if format != "png" && format != "jpeg" {
		return nil, fmt.Errorf("%w: unsupported format %s", ErrInvalidSignature, format)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidSignature)
	}
	return &Signature{Data: raw, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding}
	var lastErr error
	for _, enc := range encodings {
		raw, err := enc.DecodeString(s)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// fit scales the signature into box preserving aspect ratio and centers it.
// It returns the lower-left offset and the absolute scale factor.
func (s *Signature) fit(box SignatureBox) (x, y, scale float64) {
	sw := box.Width / float64(s.Width)
	sh := box.Height / float64(s.Height)
	scale = sw
	if sh < scale {
		scale = sh
	}
	x = box.X + (box.Width-float64(s.Width)*scale)/2
	y = box.Y + (box.Height-float64(s.Height)*scale)/2
	return x, y, scale
}

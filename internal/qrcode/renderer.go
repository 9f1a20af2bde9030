// Package qrcode renders redemption keys as PNG QR codes embedded in data URLs.
package qrcode

import (
	"encoding/base64"
	"fmt"

	qr "github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

var levels = map[string]qr.RecoveryLevel{
	"low":     qr.Low,
	"medium":  qr.Medium,
	"high":    qr.High,
	"highest": qr.Highest,
}

// PNGRenderer encodes text as a square PNG of Size pixels.
type PNGRenderer struct {
	size  int
	level qr.RecoveryLevel
}

// NewPNGRenderer creates a renderer. level is one of low, medium, high or
// highest.
func NewPNGRenderer(size int, level string) (*PNGRenderer, error) {
	l, ok := levels[level]
	if !ok {
		return nil, fmt.Errorf("unknown qr recovery level %q", level)
	}
	if size <= 0 {
		return nil, fmt.Errorf("qr size must be positive, got %d", size)
	}
	return &PNGRenderer{size: size, level: l}, nil
}

// Render returns text as a data:image/png;base64 URL.
func (r *PNGRenderer) Render(text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("encoding qr code: empty content")
	}
	png, err := qr.Encode(text, r.level, r.size)
	if err != nil {
		return "", fmt.Errorf("encoding qr code: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

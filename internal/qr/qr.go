package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DataURI renders a pairing code into a PNG data URI suitable for an <img>
// tag. size is the image edge in pixels.
func DataURI(code string, size int) (string, error) {
	if code == "" {
		return "", fmt.Errorf("empty pairing code")
	}
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

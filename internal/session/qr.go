package session

import (
	"encoding/base64"

	"github.com/skip2/go-qrcode"
)

// QRRenderer turns a raw challenge payload into a displayable image URL.
type QRRenderer func(payload string) (string, error)

const qrSize = 256

// PNGDataURL renders payload as a scannable PNG data URL.
func PNGDataURL(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

package whatsapp

import (
	"encoding/base64"
	"errors"

	"github.com/skip2/go-qrcode"
)

const defaultQRSize = 256

var ErrInvalidQRSize = errors.New("invalid size: must be between 128 and 1024")

// RenderQR encodes a pairing code as a PNG image.
func RenderQR(code string, size int) ([]byte, error) {
	if size == 0 {
		size = defaultQRSize
	}
	if size < 128 || size > 1024 {
		return nil, ErrInvalidQRSize
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	return qr.PNG(size)
}

// QRDataURL renders code as an inline data:image/png URL for the dashboard.
func QRDataURL(code string) (string, error) {
	png, err := RenderQR(code, defaultQRSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

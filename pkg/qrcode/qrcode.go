// Package qrcode renders the QR codes printed on tables and delivery
// flyers. Each code encodes a storefront entry URL carrying the visit
// context, so scanning it lands the guest in the right store at the right
// table.
package qrcode

import (
	"encoding/base64"
	"errors"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"

	"github.com/pedidoflow/guestkit/pkg/identity"
)

var (
	// ErrEmptyContent is returned when there is nothing to encode.
	ErrEmptyContent = errors.New("qrcode.empty_content")

	// ErrGenerationFailed is returned when the underlying encoder fails.
	ErrGenerationFailed = errors.New("qrcode.generation_failed")
)

const defaultSize = 256

// Generate renders content as a PNG QR code of size pixels. A non-positive
// size falls back to 256.
func Generate(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = defaultSize
	}

	png, err := skipqrcode.Encode(content, skipqrcode.Medium, size)
	if err != nil {
		return nil, errors.Join(ErrGenerationFailed, err)
	}

	return png, nil
}

// DataURI renders content as a data-URI PNG, ready for an img tag.
func DataURI(content string, size int) (string, error) {
	png, err := Generate(content, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// EntryCode renders the QR code for a visit context against the storefront
// base URL.
func EntryCode(baseURL string, ctx identity.URLContext, size int) ([]byte, error) {
	entry, err := identity.BuildEntryURL(baseURL, ctx)
	if err != nil {
		return nil, err
	}
	return Generate(entry, size)
}

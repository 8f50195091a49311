package pdf

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const pngDataURLPrefix = "data:image/png;base64,"

// MaxSignatureEncodedBytes caps the base64 payload of a submitted signature.
const MaxSignatureEncodedBytes = 5 << 20

var (
	ErrBadSignatureImage = errors.New("signature image must be a base64-encoded PNG data URL")
	ErrSignatureTooLarge = errors.New("signature image exceeds the 5MB limit")
)

// DecodeSignaturePNG validates a data:image/png;base64 payload and returns the
// raw PNG bytes.
func DecodeSignaturePNG(dataURL string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(dataURL, pngDataURLPrefix)
	if !ok || encoded == "" {
		return nil, ErrBadSignatureImage
	}
	if len(encoded) > MaxSignatureEncodedBytes {
		return nil, ErrSignatureTooLarge
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignatureImage, err)
	}
	if len(raw) == 0 {
		return nil, ErrBadSignatureImage
	}

	return raw, nil
}

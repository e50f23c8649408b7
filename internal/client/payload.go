// internal/client/payload.go
package client

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cryptochat/internal/proto"
)

// ResolvePayload turns a UI-originated message into the plaintext that
// goes on the wire. A message naming an image file becomes an inline
// "/IMGDATA" payload; everything else passes through as text.
func ResolvePayload(msg string) (string, error) {
	switch strings.ToLower(filepath.Ext(msg)) {
	case ".png", ".jpg", ".jpeg":
	default:
		return msg, nil
	}
	data, err := os.ReadFile(msg)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return proto.ImageDataPrefix + base64.StdEncoding.EncodeToString(data), nil
}

// DecodeImagePayload extracts the raw image bytes from an inline payload.
// ok is false when body is not an image payload at all.
func DecodeImagePayload(body string) (data []byte, ok bool, err error) {
	b64, ok := strings.CutPrefix(body, proto.ImageDataPrefix)
	if !ok {
		return nil, false, nil
	}
	data, err = base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, true, fmt.Errorf("invalid image data")
	}
	return data, true, nil
}

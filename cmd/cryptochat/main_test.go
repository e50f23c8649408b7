package main

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImageExt(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n....")
	jpg := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00}
	require.Equal(t, ".png", imageExt(png))
	require.Equal(t, ".jpg", imageExt(jpg))
	require.Equal(t, ".img", imageExt([]byte("GIF89a")))
	require.Equal(t, ".img", imageExt(nil))
}

func TestSaveImageUsesPayloadType(t *testing.T) {
	// A JPEG payload must not end up with a .png name.
	path, err := saveImage([]byte{0xff, 0xd8, 0xff, 0xdb, 0x01, 0x02})
	require.NoError(t, err)
	defer os.Remove(path)
	require.True(t, strings.HasSuffix(path, ".jpg"), "saved as %s", path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0xd8, 0xff, 0xdb, 0x01, 0x02}, data)
}

package content

import (
	"bytes"
	"fmt"
)

// imageMagics maps known image signatures to their extension.
var imageMagics = []struct {
	magic []byte
	ext   string
}{
	{[]byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}, "png"},
	{[]byte{0x42, 0x50, 0x47, 0xfb}, "bpg"},
	{[]byte{0x47, 0x49, 0x46}, "gif"},
	{[]byte{0xff, 0xd8, 0xff}, "jpg"},
	{[]byte{0x42, 0x4d}, "bmp"},
	{[]byte{0x00, 0x00, 0x01, 0x00}, "ico"},
	{[]byte{0x00, 0x00, 0x02, 0x00}, "cur"},
}

// ImageType sniffs an image extension from the file's leading bytes.
func ImageType(data []byte) (string, error) {
	for _, m := range imageMagics {
		if bytes.HasPrefix(data, m.magic) {
			return m.ext, nil
		}
	}
	return "", fmt.Errorf("unknown image type")
}

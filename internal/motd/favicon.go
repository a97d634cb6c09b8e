package motd

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/nfnt/resize"
)

// faviconSize is the fixed square dimension vanilla clients expect for a
// server-list-ping favicon.
const faviconSize = 64

// ResizeFavicon decodes a PNG and resizes it to the vanilla 64x64 favicon
// dimensions, re-encoding the result as PNG bytes. Operators can supply
// any square source image; this keeps their favicon_path configs from
// needing pre-scaled assets.
func ResizeFavicon(pngBytes []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, fmt.Errorf("motd: decode favicon png: %w", err)
	}
	if img.Bounds().Dx() == faviconSize && img.Bounds().Dy() == faviconSize {
		return pngBytes, nil
	}

	resized := resize.Resize(faviconSize, faviconSize, img, resize.Lanczos3)

	var out bytes.Buffer
	if err := png.Encode(&out, resized); err != nil {
		return nil, fmt.Errorf("motd: encode resized favicon: %w", err)
	}
	return out.Bytes(), nil
}

package coverart

import (
	"path/filepath"
	"strings"
)

// imageTypes pins the Content-Type of common artwork formats so responses do
// not depend on the host's mime.types.
var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".avif": "image/avif",
	".bmp":  "image/bmp",
	".ico":  "image/x-icon",
	".svg":  "image/svg+xml",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// ContentTypeFor returns the pinned image type for path, or "" to let the
// file server decide from the extension or content.
func ContentTypeFor(path string) string {
	return imageTypes[strings.ToLower(filepath.Ext(path))]
}

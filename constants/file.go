package constants

import "strings"

// AllowedExtensions holds the image extensions accepted on inbound attachments.
var AllowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"webp": {},
	"bmp":  {},
}

// MaxAttachmentBytes caps a single inbound attachment (10MB).
const MaxAttachmentBytes = 10 << 20

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MimeForExt returns the MIME type for a known image extension.
func MimeForExt(ext string) string {
	switch NormalizeExt(ext) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	}
	return "application/octet-stream"
}

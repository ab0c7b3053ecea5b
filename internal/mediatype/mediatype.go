// Package mediatype maps between file extensions and MIME types for the
// image formats the bundler accepts, and implements the extension-inference
// rules used when naming downloaded assets.
package mediatype

import (
	"net/url"
	"path"
	"strings"
)

// SupportedImageExtensions defines the file extensions accepted as image assets.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
}

// extensionByMIME maps known binary content types to their canonical extension.
// Inverse of SupportedImageExtensions with one winner per MIME type.
var extensionByMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
	"image/tiff": ".tif",
	"image/heic": ".heic",
	"image/heif": ".heif",
}

// defaultExtension is used when neither the content type nor the source
// reference yields a recognized image extension.
const defaultExtension = ".jpg"

// IsImageExt returns true if ext (with leading dot, any case) is a supported
// image extension.
func IsImageExt(ext string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return ok
}

// IsImageMIME returns true if the content type declares an image payload.
// Parameters after ";" are ignored.
func IsImageMIME(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return strings.HasPrefix(ct, "image/")
}

// ExtensionFor resolves the output extension for a downloaded asset.
// The declared content type wins when it maps to a known image format;
// otherwise the trailing path segment of the source reference is consulted
// (query and fragment stripped) and validated against the image allowlist.
// Falls back to ".jpg".
func ExtensionFor(contentType, reference string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ext, ok := extensionByMIME[ct]; ok {
		return ext
	}

	if ext := referenceExtension(reference); ext != "" {
		return ext
	}
	return defaultExtension
}

// referenceExtension extracts a whitelisted image extension from the final
// path segment of a URL or bare filename. Returns "" if nothing matches.
func referenceExtension(reference string) string {
	trimmed := reference
	if u, err := url.Parse(reference); err == nil && u.Path != "" {
		trimmed = u.Path
	} else {
		// Not a parseable URL; strip query/fragment by hand.
		if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
			trimmed = trimmed[:i]
		}
	}

	ext := strings.ToLower(path.Ext(trimmed))
	if IsImageExt(ext) {
		return ext
	}
	return ""
}

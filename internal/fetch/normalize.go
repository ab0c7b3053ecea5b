package fetch

import (
	"net/url"
	"strings"
)

// NormalizeReference rewrites provider-specific sharing links into a
// directly-fetchable form before any strategy is attempted. Unrecognized
// references are returned unchanged.
//
// Handled providers:
//   - Dropbox share links: dl=0 preview flag flipped to dl=1 force-download.
//   - Google Drive file links: web-viewer URLs rewritten to the
//     uc?export=download direct-content endpoint.
func NormalizeReference(reference string) string {
	u, err := url.Parse(reference)
	if err != nil || u.Host == "" {
		return reference
	}

	host := strings.ToLower(u.Host)

	switch {
	case strings.HasSuffix(host, "dropbox.com"):
		q := u.Query()
		q.Set("dl", "1")
		u.RawQuery = q.Encode()
		return u.String()

	case host == "drive.google.com":
		if id := driveFileID(u); id != "" {
			return "https://drive.google.com/uc?export=download&id=" + id
		}
	}

	return reference
}

// driveFileID extracts the file ID from the Drive web-viewer URL shapes
// /file/d/<id>/view and /open?id=<id>. Returns "" for folder links and
// anything else.
func driveFileID(u *url.URL) string {
	if strings.HasPrefix(u.Path, "/file/d/") {
		rest := strings.TrimPrefix(u.Path, "/file/d/")
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i]
		}
		return rest
	}
	if u.Path == "/open" {
		return u.Query().Get("id")
	}
	return ""
}

// IsDriveFolder reports whether the reference points at a Drive folder,
// which must be expanded by the crawler rather than fetched directly.
func IsDriveFolder(reference string) bool {
	u, err := url.Parse(reference)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, "drive.google.com") &&
		strings.Contains(u.Path, "/folders/")
}

// DriveFolderID extracts the folder ID from a Drive folder link.
// Returns "" if the reference is not a folder link.
func DriveFolderID(reference string) string {
	u, err := url.Parse(reference)
	if err != nil {
		return ""
	}
	const marker = "/folders/"
	i := strings.Index(u.Path, marker)
	if i < 0 {
		return ""
	}
	id := u.Path[i+len(marker):]
	if j := strings.Index(id, "/"); j >= 0 {
		id = id[:j]
	}
	return id
}

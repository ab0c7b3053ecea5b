package naming

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fpang/sku-bundler/internal/catalog"
	"github.com/fpang/sku-bundler/internal/mediatype"
)

// maxFolderLen caps sanitized group folder names to keep archive paths sane.
const maxFolderLen = 50

// AssignNames renames all assets of one group into the deterministic
// <Group>_<n>.<ext> sequence. Assets are ordered by natural comparison of
// their original names, with the container path breaking ties so duplicate
// leaf names from different subfolders keep stable indices, then indexed
// from 1. The input order carries no meaning; re-running with the same
// assets in any order yields an identical mapping.
func AssignNames(assets []catalog.RetrievedAsset) []catalog.ProcessedAsset {
	if len(assets) == 0 {
		return nil
	}

	ordered := make([]catalog.RetrievedAsset, len(assets))
	copy(ordered, assets)
	sort.SliceStable(ordered, func(i, j int) bool {
		if c := Compare(ordered[i].OriginalName, ordered[j].OriginalName); c != 0 {
			return c < 0
		}
		return Compare(ordered[i].ContainerPath, ordered[j].ContainerPath) < 0
	})

	processed := make([]catalog.ProcessedAsset, 0, len(ordered))
	for i, a := range ordered {
		folder := SanitizeFolder(a.GroupName)
		ext := mediatype.ExtensionFor(a.ContentType, a.OriginalName)
		processed = append(processed, catalog.ProcessedAsset{
			OriginalName: a.OriginalName,
			AssignedName: fmt.Sprintf("%s_%d%s", folder, i+1, ext),
			Payload:      a.Payload,
			GroupFolder:  folder,
			Size:         a.Size,
			SourceRef:    a.OriginalName,
		})
	}
	return processed
}

// SanitizeFolder normalizes a group name into a safe archive directory name:
// whitespace and anything outside [A-Za-z0-9._-] becomes an underscore.
func SanitizeFolder(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '.' {
			return r
		}
		return '_'
	}, strings.TrimSpace(name))

	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		cleaned = "group"
	}
	if len(cleaned) > maxFolderLen {
		cleaned = cleaned[:maxFolderLen]
	}
	return cleaned
}

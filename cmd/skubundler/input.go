package main

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/fpang/sku-bundler/internal/catalog"
	"github.com/fpang/sku-bundler/internal/naming"
)

// readGroups parses the input CSV into source groups. Each row is a group:
// first column the group name, remaining columns its references. Blank
// cells and blank rows are skipped; rows with a name but no references are
// rejected so a malformed sheet fails loudly instead of producing empty
// outcomes. Rows repeating a group name are merged into one group, so
// assigned names stay unique within its folder.
func readGroups(path string) ([]catalog.SourceGroup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // variable reference counts per row

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse input file: %w", err)
	}

	byName := map[string]int{}
	var groups []catalog.SourceGroup
	for i, row := range rows {
		name := ""
		var refs []string
		for j, cell := range row {
			cell = strings.TrimSpace(cell)
			if j == 0 {
				name = cell
				continue
			}
			if cell != "" {
				refs = append(refs, cell)
			}
		}

		if name == "" && len(refs) == 0 {
			continue
		}
		if name == "" {
			return nil, fmt.Errorf("row %d: missing group name", i+1)
		}
		if len(refs) == 0 {
			return nil, fmt.Errorf("row %d (%s): no references", i+1, name)
		}
		if j, ok := byName[name]; ok {
			groups[j].References = append(groups[j].References, refs...)
			continue
		}
		byName[name] = len(groups)
		groups = append(groups, catalog.SourceGroup{Name: name, References: refs})
	}

	if len(groups) == 0 {
		return nil, fmt.Errorf("input file %s contains no groups", path)
	}
	return groups, nil
}

// readFlat parses a flat list of references, one per line, and classifies
// them into groups by filename prefix. Group order follows first appearance.
func readFlat(filePath string) ([]catalog.SourceGroup, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	byName := map[string]int{}
	var groups []catalog.SourceGroup

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ref := strings.TrimSpace(scanner.Text())
		if ref == "" {
			continue
		}
		name := naming.GroupKey(referenceBase(ref))
		i, ok := byName[name]
		if !ok {
			i = len(groups)
			byName[name] = i
			groups = append(groups, catalog.SourceGroup{Name: name})
		}
		groups[i].References = append(groups[i].References, ref)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}

	if len(groups) == 0 {
		return nil, fmt.Errorf("input file %s contains no references", filePath)
	}
	return groups, nil
}

// referenceBase extracts the trailing filename of a URL or bare path,
// ignoring query and fragment.
func referenceBase(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	return path.Base(ref)
}

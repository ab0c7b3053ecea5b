// Package catalog defines the data model shared across the retrieval and
// packaging pipeline: input groups, retrieved and renamed assets, and
// per-group outcome records.
package catalog

// SourceGroup is one named unit of work (a SKU) and its source references.
// References may be direct asset URLs, Drive folder links, or gallery pages.
// Groups are immutable once handed to the pipeline.
type SourceGroup struct {
	Name       string
	References []string
}

// PrimaryReference returns the first reference, or "" for an empty group.
// Used for outcome reporting.
func (g SourceGroup) PrimaryReference() string {
	if len(g.References) == 0 {
		return ""
	}
	return g.References[0]
}

// RetrievedAsset is a raw binary fetched from a source, before naming.
// ContainerPath is set only for assets discovered by the Drive crawler and
// records the folder chain the asset was found under.
type RetrievedAsset struct {
	OriginalName  string
	Payload       []byte
	Size          int64
	ContentType   string
	GroupName     string
	ContainerPath string
}

// ProcessedAsset is a retrieved asset after the naming pass. AssignedName is
// unique within GroupFolder; GroupFolder determines archive placement.
type ProcessedAsset struct {
	OriginalName string
	AssignedName string
	Payload      []byte
	GroupFolder  string
	Size         int64
	SourceRef    string
}

// Status classifies how a group's retrieval went.
type Status int

const (
	// StatusSuccess means every reference in the group yielded its assets.
	StatusSuccess Status = iota
	// StatusPartial means some but not all assets were retrieved.
	StatusPartial
	// StatusFailed means the group yielded zero assets.
	StatusFailed
)

// String returns the report-facing label for the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusPartial:
		return "Partial"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// GroupOutcome summarizes one group's retrieval. Created exactly once per
// group after its batch drains; consumed only by the archive report writer.
type GroupOutcome struct {
	GroupName   string
	PrimaryRef  string
	Status      Status
	AssetsFound int
	Notes       string
}

package database

import (
	"slices"

	"github.com/nao1215/sitecrawl/internal/model"
)

// RunDiff lists how the visited set and page contents changed between two
// runs.
type RunDiff struct {
	// OldID and NewID are the compared run IDs.
	OldID int64 `json:"old_id"`
	NewID int64 `json:"new_id"`

	// Added holds URLs visited in the new run only.
	Added []string `json:"added"`

	// Removed holds URLs visited in the old run only.
	Removed []string `json:"removed"`

	// Changed holds URLs fetched in both runs whose content digest differs.
	Changed []string `json:"changed"`
}

// IsEmpty reports whether the runs visited the same URLs with the same
// content.
func (d *RunDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffRuns compares two reports. All result slices are sorted.
func DiffRuns(older, newer *model.CrawlReport) *RunDiff {
	diff := &RunDiff{
		OldID:   older.ID,
		NewID:   newer.ID,
		Added:   make([]string, 0),
		Removed: make([]string, 0),
		Changed: make([]string, 0),
	}

	oldVisited := toSet(older.Visited)
	newVisited := toSet(newer.Visited)

	for u := range newVisited {
		if _, ok := oldVisited[u]; !ok {
			diff.Added = append(diff.Added, u)
		}
	}
	for u := range oldVisited {
		if _, ok := newVisited[u]; !ok {
			diff.Removed = append(diff.Removed, u)
		}
	}

	for _, page := range newer.Pages {
		prev := older.Page(page.URL)
		if prev != nil && prev.Hash != page.Hash {
			diff.Changed = append(diff.Changed, page.URL)
		}
	}

	slices.Sort(diff.Added)
	slices.Sort(diff.Removed)
	slices.Sort(diff.Changed)

	return diff
}

func toSet(urls []string) map[string]struct{} {
	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		set[u] = struct{}{}
	}
	return set
}

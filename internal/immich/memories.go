package immich

import "sort"

// FilterForDate keeps the memories whose showAt falls on the given day.
// Dates are compared as YYYY-MM-DD prefixes, the format the server emits.
func FilterForDate(mems []Memory, date string) []Memory {
	var out []Memory
	for _, m := range mems {
		if len(m.ShowAt) >= len(date) && m.ShowAt[:len(date)] == date {
			out = append(out, m)
		}
	}
	return out
}

// YearGroup aggregates one year's worth of a day's memories.
type YearGroup struct {
	Images int
	Videos int
	Assets []Asset
}

// Digest is the flattened view of a day's memories that selection works
// from: per-year asset groups plus global counts.
type Digest struct {
	TotalAssets  int
	ImageCount   int
	VideoCount   int
	Years        []int // descending, most recent first
	ByYear       map[int]YearGroup
	FirstAssetID string
}

// BuildDigest folds a day's memories into per-year groups. Memories
// without a year and assets without an ID are dropped; assets with no
// declared type count as images.
func BuildDigest(mems []Memory) Digest {
	d := Digest{ByYear: make(map[int]YearGroup)}
	for _, m := range mems {
		year := m.Data.Year
		if year == 0 {
			continue
		}
		group := d.ByYear[year]
		for _, a := range m.Assets {
			if a.ID == "" {
				continue
			}
			if d.FirstAssetID == "" {
				d.FirstAssetID = a.ID
			}
			if a.IsVideo() {
				group.Videos++
				d.VideoCount++
			} else {
				group.Images++
				d.ImageCount++
			}
			group.Assets = append(group.Assets, a)
			d.TotalAssets++
		}
		d.ByYear[year] = group
	}
	for year, group := range d.ByYear {
		if len(group.Assets) == 0 {
			delete(d.ByYear, year)
			continue
		}
		d.Years = append(d.Years, year)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(d.Years)))
	return d
}

// AnyDateWithMemories scans the full memory list for a day that has at
// least one memory, trying at most limit distinct dates in encounter
// order. Used in test runs when today is empty.
func AnyDateWithMemories(mems []Memory, limit int) (string, []Memory, bool) {
	seen := make(map[string]bool)
	tried := 0
	for _, m := range mems {
		if len(m.ShowAt) < 10 {
			continue
		}
		date := m.ShowAt[:10]
		if seen[date] {
			continue
		}
		seen[date] = true
		tried++
		if filtered := FilterForDate(mems, date); len(filtered) > 0 {
			return date, filtered, true
		}
		if tried >= limit {
			break
		}
	}
	return "", nil, false
}

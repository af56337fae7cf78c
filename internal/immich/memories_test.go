package immich

import (
	"reflect"
	"testing"
)

func mem(year int, showAt string, assets ...Asset) Memory {
	return Memory{Type: "on_this_day", ShowAt: showAt, Data: MemoryData{Year: year}, Assets: assets}
}

func TestFilterForDate(t *testing.T) {
	t.Parallel()

	mems := []Memory{
		mem(2020, "2024-06-15T00:00:00Z", Asset{ID: "a1"}),
		mem(2019, "2024-06-16T00:00:00Z", Asset{ID: "a2"}),
		mem(2018, "2024-06-15T00:00:00Z", Asset{ID: "a3"}),
	}

	got := FilterForDate(mems, "2024-06-15")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Data.Year != 2020 || got[1].Data.Year != 2018 {
		t.Fatalf("unexpected years: %d, %d", got[0].Data.Year, got[1].Data.Year)
	}
	if got := FilterForDate(mems, "2024-01-01"); got != nil {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestBuildDigest(t *testing.T) {
	t.Parallel()

	mems := []Memory{
		mem(2020, "2024-06-15T00:00:00Z",
			Asset{ID: "a1", Type: AssetImage},
			Asset{ID: "a2", Type: AssetVideo},
		),
		mem(2022, "2024-06-15T00:00:00Z",
			Asset{ID: "a3", Type: AssetImage},
			Asset{ID: ""}, // no ID, dropped
		),
		mem(0, "2024-06-15T00:00:00Z", Asset{ID: "a4"}), // no year, dropped
		mem(2020, "2024-06-15T00:00:00Z", Asset{ID: "a5"}),
	}

	d := BuildDigest(mems)
	if d.TotalAssets != 4 {
		t.Fatalf("TotalAssets = %d, want 4", d.TotalAssets)
	}
	if d.ImageCount != 3 || d.VideoCount != 1 {
		t.Fatalf("counts = %d images, %d videos; want 3, 1", d.ImageCount, d.VideoCount)
	}
	if !reflect.DeepEqual(d.Years, []int{2022, 2020}) {
		t.Fatalf("Years = %v, want [2022 2020]", d.Years)
	}
	if d.FirstAssetID != "a1" {
		t.Fatalf("FirstAssetID = %q, want a1", d.FirstAssetID)
	}

	g2020 := d.ByYear[2020]
	if g2020.Images != 2 || g2020.Videos != 1 || len(g2020.Assets) != 3 {
		t.Fatalf("2020 group = %+v", g2020)
	}
	// Untyped assets count as images.
	g2022 := d.ByYear[2022]
	if g2022.Images != 1 || len(g2022.Assets) != 1 {
		t.Fatalf("2022 group = %+v", g2022)
	}
}

func TestBuildDigestEmpty(t *testing.T) {
	t.Parallel()

	d := BuildDigest(nil)
	if d.TotalAssets != 0 || len(d.Years) != 0 || d.FirstAssetID != "" {
		t.Fatalf("unexpected digest: %+v", d)
	}
}

func TestAnyDateWithMemories(t *testing.T) {
	t.Parallel()

	mems := []Memory{
		mem(2020, "2024-06-15T00:00:00Z", Asset{ID: "a1"}),
		mem(2019, "2024-06-20T00:00:00Z", Asset{ID: "a2"}),
	}

	date, filtered, ok := AnyDateWithMemories(mems, 10)
	if !ok {
		t.Fatal("expected a date with memories")
	}
	if date != "2024-06-15" {
		t.Fatalf("date = %q, want 2024-06-15", date)
	}
	if len(filtered) != 1 || filtered[0].Data.Year != 2020 {
		t.Fatalf("unexpected filtered set: %+v", filtered)
	}

	if _, _, ok := AnyDateWithMemories(nil, 10); ok {
		t.Fatal("expected no date for empty memory list")
	}
}

func TestAssetCreatedAt(t *testing.T) {
	t.Parallel()

	a := Asset{ID: "a1", FileCreatedAt: "2020-06-15T10:30:00Z"}
	ts, ok := a.CreatedAt()
	if !ok {
		t.Fatal("expected parseable timestamp")
	}
	if ts.Year() != 2020 || ts.Month() != 6 {
		t.Fatalf("unexpected time: %v", ts)
	}

	if _, ok := (Asset{FileCreatedAt: "garbage"}).CreatedAt(); ok {
		t.Fatal("expected parse failure")
	}
	if _, ok := (Asset{}).CreatedAt(); ok {
		t.Fatal("expected failure for empty timestamp")
	}
}

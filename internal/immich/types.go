package immich

import "time"

const (
	AssetImage = "IMAGE"
	AssetVideo = "VIDEO"
)

// Asset is the slice of an Immich asset record this system cares about.
type Asset struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	FileCreatedAt string `json:"fileCreatedAt,omitempty"`
}

func (a Asset) IsVideo() bool { return a.Type == AssetVideo }

// CreatedAt parses the asset's creation timestamp. Assets with a missing
// or malformed timestamp report false and are treated as undated.
func (a Asset) CreatedAt() (time.Time, bool) {
	if a.FileCreatedAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, a.FileCreatedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Memory is one server-curated "on this day" collection.
type Memory struct {
	ID     string     `json:"id"`
	Type   string     `json:"type,omitempty"`
	ShowAt string     `json:"showAt"`
	Data   MemoryData `json:"data"`
	Assets []Asset    `json:"assets"`
}

type MemoryData struct {
	Year int `json:"year"`
}

type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ExifInfo struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// AssetDetail is the single-asset record: recognized faces plus the EXIF
// fields used for location enrichment.
type AssetDetail struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	People   []Person  `json:"people"`
	ExifInfo *ExifInfo `json:"exifInfo"`
}

type Album struct {
	ID        string `json:"id"`
	AlbumName string `json:"albumName"`
}

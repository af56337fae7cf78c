package content

import (
	"context"
	"math/rand"
	"time"

	"github.com/ismaildakrory/immich-memories-notify/internal/config"
	"github.com/ismaildakrory/immich-memories-notify/internal/immich"
	"github.com/ismaildakrory/immich-memories-notify/internal/retry"
	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

// Kind distinguishes the two notification shapes a slot can produce.
type Kind string

const (
	KindMemory Kind = "memory"
	KindPerson Kind = "person"
)

// Page size for person-asset searches. Big enough that the recency and
// dedup filters still leave a pool to draw from.
const personPageSize = 100

// Selection is a picked asset and the context needed to render it.
type Selection struct {
	Kind   Kind
	Asset  immich.Asset
	Year   int    // memory selections
	Person string // person selections

	// Detail is the asset record when tiering already fetched it, so
	// rendering can reuse the faces/EXIF without another call.
	Detail *immich.AssetDetail
}

// Selector picks slot content for one user. Not safe for concurrent use;
// a run builds one per user.
type Selector struct {
	cfg *config.Config
	lib Library
	log logx.Logger
	rng *rand.Rand
	now func() time.Time

	tops       []RankedPerson
	topsLoaded bool
}

func NewSelector(cfg *config.Config, lib Library, log logx.Logger, rng *rand.Rand, now func() time.Time) *Selector {
	if now == nil {
		now = time.Now
	}
	return &Selector{cfg: cfg, lib: lib, log: log, rng: rng, now: now}
}

// YearForSlot maps a slot onto the available years, wrapping when there
// are more memory slots than distinct years. Years must be non-empty and
// slot ≥ 1.
func YearForSlot(years []int, slot int) int {
	return years[(slot-1)%len(years)]
}

// Pick decides what a slot sends. Slots up to the memory-slot count draw
// from the day's memories by year; the next person-slot count slots send a
// person photo; later slots produce nothing. When the day has no memories
// at all, the fallback-slot count of person notifications applies instead.
// Upstream hiccups during selection degrade the choice rather than fail
// it; the second return is false when the slot has nothing to send.
func (s *Selector) Pick(ctx context.Context, slot int, digest immich.Digest, used []string) (Selection, bool) {
	set := s.cfg.Settings

	if len(digest.Years) == 0 {
		if slot <= set.FallbackSlots() {
			return s.pickPerson(ctx, used)
		}
		return Selection{}, false
	}

	memorySlots := set.MemorySlots()
	switch {
	case slot <= memorySlots:
		year := YearForSlot(digest.Years, slot)
		return s.pickMemory(ctx, year, digest.ByYear[year].Assets, used)
	case slot <= memorySlots+set.PersonSlots():
		return s.pickPerson(ctx, used)
	default:
		return Selection{}, false
	}
}

// facedAsset is an asset annotated with its face lookup result.
type facedAsset struct {
	asset  immich.Asset
	detail *immich.AssetDetail
	faces  int
}

// pickMemory selects one asset from a year's group. Already-sent assets
// are excluded first; the rest are partitioned by face preference: assets
// showing a top person beat assets showing any named face beat the rest.
// When exclusion empties the list, the pick falls back to the original
// group so the slot still sends something.
func (s *Selector) pickMemory(ctx context.Context, year int, assets []immich.Asset, used []string) (Selection, bool) {
	if len(assets) == 0 {
		return Selection{}, false
	}

	remaining := excludeAssets(assets, used)
	if len(remaining) == 0 {
		a := assets[s.rng.Intn(len(assets))]
		return Selection{Kind: KindMemory, Asset: a, Year: year}, true
	}

	topIDs := make(map[string]bool)
	for _, p := range s.topPersons(ctx) {
		topIDs[p.ID] = true
	}

	var tiers [3][]facedAsset
	for _, a := range remaining {
		fa := s.inspectFaces(ctx, a)
		tier := 2 // no named face
		switch {
		case hasTopFace(fa.detail, topIDs):
			tier = 0
		case fa.faces > 0:
			tier = 1
		}
		tiers[tier] = append(tiers[tier], fa)
	}

	for _, tier := range tiers {
		if len(tier) == 0 {
			continue
		}
		pool := tier
		if s.cfg.Settings.GroupPhotosPreferred() {
			if grouped := groupPhotos(tier, s.cfg.Settings.GroupSizeMin()); len(grouped) > 0 {
				pool = grouped
			}
		}
		fa := pool[s.rng.Intn(len(pool))]
		return Selection{Kind: KindMemory, Asset: fa.asset, Year: year, Detail: fa.detail}, true
	}
	return Selection{}, false
}

// inspectFaces fetches an asset's recognized faces. Lookup failures rank
// the asset as faceless instead of aborting the pick.
func (s *Selector) inspectFaces(ctx context.Context, a immich.Asset) facedAsset {
	var detail immich.AssetDetail
	err := retry.Run(ctx, s.log, s.cfg.Settings.RetryPolicy(), "fetch asset faces", func(ctx context.Context) error {
		var err error
		detail, err = s.lib.AssetDetail(ctx, a.ID)
		return err
	})
	if err != nil {
		s.log.Warn("face lookup failed, ranking asset as faceless",
			logx.String("asset", a.ID), logx.Err(err))
		return facedAsset{asset: a}
	}

	named := 0
	for _, p := range detail.People {
		if p.Name != "" {
			named++
		}
	}
	return facedAsset{asset: a, detail: &detail, faces: named}
}

// pickPerson shuffles the top-ranked persons and takes the first whose
// photos, minus already-sent and too-recent ones, leave a pool to draw
// from.
func (s *Selector) pickPerson(ctx context.Context, used []string) (Selection, bool) {
	tops := s.topPersons(ctx)
	if len(tops) == 0 {
		return Selection{}, false
	}

	shuffled := make([]RankedPerson, len(tops))
	copy(shuffled, tops)
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	cutoff := s.now().AddDate(0, 0, -s.cfg.Settings.ExcludeRecent())
	for _, person := range shuffled {
		var assets []immich.Asset
		err := retry.Run(ctx, s.log, s.cfg.Settings.RetryPolicy(), "fetch person assets", func(ctx context.Context) error {
			var err error
			assets, err = s.lib.PersonAssets(ctx, person.ID, personPageSize)
			return err
		})
		if err != nil {
			s.log.Warn("person assets unavailable, trying next person",
				logx.String("person", person.Name), logx.Err(err))
			continue
		}

		var pool []immich.Asset
		for _, a := range excludeAssets(assets, used) {
			if created, ok := a.CreatedAt(); ok && created.After(cutoff) {
				continue
			}
			pool = append(pool, a)
		}
		if len(pool) == 0 {
			continue
		}
		a := pool[s.rng.Intn(len(pool))]
		return Selection{Kind: KindPerson, Asset: a, Person: person.Name}, true
	}
	return Selection{}, false
}

// topPersons ranks once per selector. A ranking failure degrades to an
// empty list: memory picks lose their top tier, person picks come up
// empty, the slot itself still completes.
func (s *Selector) topPersons(ctx context.Context) []RankedPerson {
	if s.topsLoaded {
		return s.tops
	}
	s.topsLoaded = true

	ranked, err := rankTopPersons(ctx, s.lib, s.cfg.Settings.RetryPolicy(), s.log, s.cfg.Settings.TopPersons())
	if err != nil {
		s.log.Warn("person ranking unavailable", logx.Err(err))
		return nil
	}
	s.tops = ranked
	return s.tops
}

func excludeAssets(assets []immich.Asset, used []string) []immich.Asset {
	if len(used) == 0 {
		return assets
	}
	usedSet := make(map[string]bool, len(used))
	for _, id := range used {
		usedSet[id] = true
	}
	var out []immich.Asset
	for _, a := range assets {
		if !usedSet[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

func hasTopFace(detail *immich.AssetDetail, topIDs map[string]bool) bool {
	if detail == nil || len(topIDs) == 0 {
		return false
	}
	for _, p := range detail.People {
		if p.Name != "" && topIDs[p.ID] {
			return true
		}
	}
	return false
}

// groupPhotos keeps the assets with at least minFaces recognized faces.
func groupPhotos(tier []facedAsset, minFaces int) []facedAsset {
	var out []facedAsset
	for _, fa := range tier {
		if fa.faces >= minFaces {
			out = append(out, fa)
		}
	}
	return out
}

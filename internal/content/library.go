// Package content decides what a slot sends: memory-year or person photo,
// face-preference tiering, and message rendering.
package content

import (
	"context"
	"sort"

	"github.com/ismaildakrory/immich-memories-notify/internal/immich"
	"github.com/ismaildakrory/immich-memories-notify/internal/retry"
	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

// Library is the read-only slice of the photo service that selection
// needs. *immich.Client satisfies it; tests substitute fakes.
type Library interface {
	Memories(ctx context.Context) ([]immich.Memory, error)
	People(ctx context.Context) ([]immich.Person, error)
	PersonAssets(ctx context.Context, personID string, size int) ([]immich.Asset, error)
	PersonAssetCount(ctx context.Context, personID string) (int, error)
	AssetDetail(ctx context.Context, assetID string) (immich.AssetDetail, error)
	AssetAlbums(ctx context.Context, assetID string) ([]immich.Album, error)
	Thumbnail(ctx context.Context, assetID string) ([]byte, error)
}

// RankedPerson is a person plus their approximate library asset count.
type RankedPerson struct {
	immich.Person
	Count int
}

// rankTopPersons orders named people by how many assets feature them and
// keeps the first limit. A failed count query keeps the person with count
// zero instead of dropping them; only the ordering degrades.
func rankTopPersons(ctx context.Context, lib Library, pol retry.Policy, log logx.Logger, limit int) ([]RankedPerson, error) {
	var people []immich.Person
	err := retry.Run(ctx, log, pol, "fetch people", func(ctx context.Context) error {
		var err error
		people, err = lib.People(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	var ranked []RankedPerson
	for _, p := range people {
		if p.Name == "" {
			continue
		}
		var count int
		err := retry.Run(ctx, log, pol, "count person assets", func(ctx context.Context) error {
			var err error
			count, err = lib.PersonAssetCount(ctx, p.ID)
			return err
		})
		if err != nil {
			count = 0
		}
		ranked = append(ranked, RankedPerson{Person: p, Count: count})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

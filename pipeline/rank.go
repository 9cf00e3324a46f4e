// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"math"
	"sort"

	"github.com/jcodagnone/geosites/clustering"
	"github.com/jcodagnone/geosites/extraction"
	"gonum.org/v1/gonum/stat"
)

// Ranking weights: confidence against relative cluster size.
const (
	ConfidenceWeight  = 0.7
	ClusterSizeWeight = 0.3
)

// Dedup merges entities whose points lie within toleranceKm of an earlier
// survivor. The member with the highest confidence survives (the earliest on
// ties) and lists the others in MergedFrom. Entities without a point are
// never merged. It returns the survivors, in input order, and the number of
// entities merged away.
func Dedup(entities []*extraction.GeoEntity, toleranceKm float64) ([]*extraction.GeoEntity, int) {
	survivors := make([]*extraction.GeoEntity, 0, len(entities))
	merged := 0

	for _, e := range entities {
		slot := -1

		if e.HasPoint() {
			for i, s := range survivors {
				if s.HasPoint() && s.Point.DistanceKm(*e.Point) <= toleranceKm {
					slot = i

					break
				}
			}
		}

		if slot < 0 {
			survivors = append(survivors, e)

			continue
		}

		merged++

		kept := survivors[slot]
		if e.Confidence > kept.Confidence {
			e.MergedFrom = append(append(e.MergedFrom, kept.MergedFrom...), kept.Provenance())
			kept.MergedFrom = nil
			survivors[slot] = e

			continue
		}

		kept.MergedFrom = append(kept.MergedFrom, e.Provenance())
		kept.MergedFrom = append(kept.MergedFrom, e.MergedFrom...)
	}

	return survivors, merged
}

// Rank scores coordinate-bearing entities at or above minConfidence by
// ConfidenceWeight·confidence + ClusterSizeWeight·(size/largest size),
// best first. Equal scores keep entity order.
func Rank(entities []*extraction.GeoEntity, info clustering.ClusterInfo, minConfidence float64) []RankedEntity {
	maxSize := info.MaxSize()

	ranked := make([]RankedEntity, 0, len(entities))

	for _, e := range entities {
		if !e.HasPoint() || e.Confidence < minConfidence {
			continue
		}

		size := 0
		if e.Cluster != nil {
			if c, ok := info.ByID(*e.Cluster); ok {
				size = c.Size
			}
		}

		score := ConfidenceWeight * e.Confidence
		if maxSize > 0 {
			score += ClusterSizeWeight * float64(size) / float64(maxSize)
		}

		ranked = append(ranked, RankedEntity{Entity: e, Score: score, ClusterSize: size})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return ranked
}

func confidenceStats(entities []*extraction.GeoEntity) ConfidenceStats {
	if len(entities) == 0 {
		return ConfidenceStats{}
	}

	values := make([]float64, len(entities))
	for i, e := range entities {
		values[i] = e.Confidence
	}

	mean, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}

	cs := ConfidenceStats{Mean: mean, StdDev: std, Min: values[0], Max: values[0]}
	for _, v := range values[1:] {
		cs.Min = min(cs.Min, v)
		cs.Max = max(cs.Max, v)
	}

	return cs
}

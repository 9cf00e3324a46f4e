// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package clustering groups geocoded entities into distinct study regions
// with DBSCAN over great-circle distance.
package clustering

import (
	"math"
	"sort"

	"github.com/jcodagnone/geosites/extraction"
	"github.com/jcodagnone/geosites/spatial"
	"gonum.org/v1/gonum/stat"
)

// Defaults for the adaptive neighbourhood radius.
const (
	DefaultMinSamples    = 1
	DefaultEpsQuantile   = 0.5
	DefaultEpsMultiplier = 2.0
	DefaultMinEpsKm      = 1.0
	DefaultMaxEpsKm      = 100.0
	DefaultEpsKm         = 25.0
)

// Params configures the clusterer. EpsKm, when positive, disables the
// adaptive estimate.
type Params struct {
	EpsKm         float64
	MinSamples    int // counts the point itself
	EpsQuantile   float64
	EpsMultiplier float64
	MinEpsKm      float64
	MaxEpsKm      float64
	DefaultEpsKm  float64
}

// DefaultParams returns parameters suitable for study sites within a paper.
func DefaultParams() Params {
	return Params{
		MinSamples:    DefaultMinSamples,
		EpsQuantile:   DefaultEpsQuantile,
		EpsMultiplier: DefaultEpsMultiplier,
		MinEpsKm:      DefaultMinEpsKm,
		MaxEpsKm:      DefaultMaxEpsKm,
		DefaultEpsKm:  DefaultEpsKm,
	}
}

// Cluster is one geographic region.
type Cluster struct {
	ID             int           `json:"id"`
	Size           int           `json:"size"`
	Representative spatial.Point `json:"representative"`
	// FirstIndex is the position, among clustered points, of the first member.
	FirstIndex int `json:"first_index"`
}

// ClusterInfo lists every cluster found, largest first.
type ClusterInfo struct {
	Clusters []Cluster `json:"clusters"`
	EpsKm    float64   `json:"eps_km"`
	Noise    int       `json:"noise"`
}

// ByID returns the cluster with the given id.
func (ci ClusterInfo) ByID(id int) (Cluster, bool) {
	if id < 0 || id >= len(ci.Clusters) {
		return Cluster{}, false
	}

	return ci.Clusters[id], true
}

// Len returns the number of clusters.
func (ci ClusterInfo) Len() int {
	return len(ci.Clusters)
}

// Sizes returns cluster sizes in ID order.
func (ci ClusterInfo) Sizes() []int {
	sizes := make([]int, len(ci.Clusters))
	for i, c := range ci.Clusters {
		sizes[i] = c.Size
	}

	return sizes
}

// MaxSize returns the size of the largest cluster, 0 when there is none.
func (ci ClusterInfo) MaxSize() int {
	if len(ci.Clusters) == 0 {
		return 0
	}

	return ci.Clusters[0].Size
}

// Clusterer assigns cluster labels to geocoded entities.
type Clusterer struct {
	params Params
}

// New returns a clusterer. Zero fields in params take their defaults.
func New(params Params) *Clusterer {
	def := DefaultParams()

	if params.MinSamples <= 0 {
		params.MinSamples = def.MinSamples
	}

	if params.EpsQuantile <= 0 || params.EpsQuantile > 1 {
		params.EpsQuantile = def.EpsQuantile
	}

	if params.EpsMultiplier <= 0 {
		params.EpsMultiplier = def.EpsMultiplier
	}

	if params.MinEpsKm <= 0 {
		params.MinEpsKm = def.MinEpsKm
	}

	if params.MaxEpsKm <= 0 {
		params.MaxEpsKm = def.MaxEpsKm
	}

	if params.DefaultEpsKm <= 0 {
		params.DefaultEpsKm = def.DefaultEpsKm
	}

	return &Clusterer{params: params}
}

// Params returns the effective parameters.
func (c *Clusterer) Params() Params {
	return c.params
}

// Cluster labels every entity holding a point, in place, and returns the
// clusters. Entities without a point are left alone; points in no dense
// region get a nil label.
func (c *Clusterer) Cluster(entities []*extraction.GeoEntity) ClusterInfo {
	var (
		members []*extraction.GeoEntity
		points  []spatial.Point
	)

	for _, e := range entities {
		if e.HasPoint() {
			e.Cluster = nil
			members = append(members, e)
			points = append(points, *e.Point)
		}
	}

	if len(points) == 0 {
		return ClusterInfo{Clusters: []Cluster{}}
	}

	dist := distanceMatrix(points)

	eps := c.params.EpsKm
	if eps <= 0 {
		eps = c.estimateEps(dist)
	}

	// a lone point is its own region whatever min_samples says
	if len(points) == 1 {
		id := 0
		members[0].Cluster = &id

		return ClusterInfo{
			Clusters: []Cluster{{ID: 0, Size: 1, Representative: points[0]}},
			EpsKm:    eps,
		}
	}

	labels := dbscan(dist, eps, c.params.MinSamples)
	info := buildClusters(points, labels)
	info.EpsKm = eps

	// raw DBSCAN labels are 1-based in discovery order
	remap := make(map[int]int, len(info.Clusters))
	for i := range info.Clusters {
		remap[info.Clusters[i].ID] = i
		info.Clusters[i].ID = i
	}

	for i, e := range members {
		if labels[i] <= 0 {
			info.Noise++

			continue
		}

		id := remap[labels[i]]
		e.Cluster = &id
	}

	return info
}

func distanceMatrix(points []spatial.Point) [][]float64 {
	n := len(points)

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := points[i].DistanceKm(points[j])
			dist[i][j], dist[j][i] = d, d
		}
	}

	return dist
}

// EstimateEps returns the adaptive radius in km for points.
func (c *Clusterer) EstimateEps(points []spatial.Point) float64 {
	return c.estimateEps(distanceMatrix(points))
}

// estimateEps takes the configured quantile of each point's distance to its
// k-th nearest neighbour, scaled and clamped.
func (c *Clusterer) estimateEps(dist [][]float64) float64 {
	n := len(dist)
	if n < 2 {
		return c.params.DefaultEpsKm
	}

	k := min(max(1, c.params.MinSamples), n-1)

	kth := make([]float64, n)

	row := make([]float64, 0, n-1)
	for i := range dist {
		row = row[:0]

		for j, d := range dist[i] {
			if j != i {
				row = append(row, d)
			}
		}

		sort.Float64s(row)
		kth[i] = row[k-1]
	}

	sort.Float64s(kth)

	q := stat.Quantile(c.params.EpsQuantile, stat.Empirical, kth, nil)
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return c.params.DefaultEpsKm
	}

	return min(c.params.MaxEpsKm, max(c.params.MinEpsKm, c.params.EpsMultiplier*q))
}

// dbscan labels points: 0 unvisited, -1 noise, >0 cluster id.
func dbscan(dist [][]float64, eps float64, minPts int) []int {
	n := len(dist)
	labels := make([]int, n)
	clusterID := 0

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}

		neighbors := regionQuery(dist, i, eps)
		if len(neighbors) < minPts {
			labels[i] = -1

			continue
		}

		clusterID++
		expandCluster(dist, labels, i, neighbors, clusterID, eps, minPts)
	}

	return labels
}

// regionQuery returns the indices within eps of idx, idx included.
func regionQuery(dist [][]float64, idx int, eps float64) []int {
	var neighbors []int

	for j, d := range dist[idx] {
		if d <= eps {
			neighbors = append(neighbors, j)
		}
	}

	return neighbors
}

func expandCluster(dist [][]float64, labels []int, seedIdx int, neighbors []int, clusterID int, eps float64, minPts int) {
	labels[seedIdx] = clusterID

	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]

		if labels[idx] == -1 {
			labels[idx] = clusterID // noise becomes border point
		}

		if labels[idx] != 0 {
			continue
		}

		labels[idx] = clusterID

		newNeighbors := regionQuery(dist, idx, eps)
		if len(newNeighbors) >= minPts {
			neighbors = append(neighbors, newNeighbors...)
		}
	}
}

// buildClusters collects clusters from labels, sorted by size descending
// and then by first member. IDs still hold the raw labels.
func buildClusters(points []spatial.Point, labels []int) ClusterInfo {
	byLabel := make(map[int][]int)

	var order []int

	for i, l := range labels {
		if l <= 0 {
			continue
		}

		if _, ok := byLabel[l]; !ok {
			order = append(order, l)
		}

		byLabel[l] = append(byLabel[l], i)
	}

	clusters := make([]Cluster, 0, len(order))

	for _, l := range order {
		idx := byLabel[l]

		ps := make([]spatial.Point, len(idx))
		for i, j := range idx {
			ps[i] = points[j]
		}

		rep, _ := spatial.Centroid(ps)

		clusters = append(clusters, Cluster{
			ID:             l,
			Size:           len(idx),
			Representative: rep,
			FirstIndex:     idx[0],
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Size != clusters[j].Size {
			return clusters[i].Size > clusters[j].Size
		}

		return clusters[i].FirstIndex < clusters[j].FirstIndex
	})

	return ClusterInfo{Clusters: clusters}
}

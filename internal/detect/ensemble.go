package detect

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/sentinela-br/sentinela/internal/models"
)

const (
	ensembleMinRecords = 10

	isoForestTrees      = 50
	isoForestSampleSize = 64
	isoScoreThreshold   = 0.62

	oneClassSigmaFactor = 2.5

	lofNeighbors = 5
	lofThreshold = 1.5
)

// EnsembleDetector runs three unsupervised outlier methods over a
// normalized feature vector per record: value, vendor frequency, vendor
// concentration and temporal position. A record is flagged when any single
// method scores it as an outlier; each method contributes its own
// confidence, so the same record can carry up to three ml_outlier flags.
type EnsembleDetector struct {
	seed int64
}

func NewEnsembleDetector() *EnsembleDetector {
	return &EnsembleDetector{seed: 1}
}

func (d *EnsembleDetector) Name() string { return "ml_ensemble" }

func (d *EnsembleDetector) Detect(records []models.Record, graph *models.EntityGraph) ([]models.Anomaly, error) {
	features, ids := buildFeatures(records, graph)
	if len(features) < ensembleMinRecords {
		return nil, nil
	}
	normalizeColumns(features)

	var anomalies []models.Anomaly
	flag := func(i int, method string, confidence float64) {
		anomalies = append(anomalies, models.NewAnomaly(
			models.AnomalyMLOutlier,
			d.Name(),
			models.SeverityMedium,
			clamp01(confidence),
			[]string{ids[i]},
			fmt.Sprintf("flagged as outlier by %s (score %.2f)", method, confidence),
		))
	}

	for i, score := range isolationForestScores(features, d.seed) {
		if score > isoScoreThreshold {
			flag(i, "isolation forest", score)
		}
	}
	for i, score := range oneClassScores(features) {
		if score > 0 {
			flag(i, "one-class distance", score)
		}
	}
	for i, lof := range lofScores(features) {
		if lof > lofThreshold {
			flag(i, "local outlier factor", clamp01((lof-1)/2))
		}
	}
	return anomalies, nil
}

// buildFeatures maps each record to [log value, vendor contract count,
// vendor concentration share, temporal position]. Records without a value
// are excluded.
func buildFeatures(records []models.Record, graph *models.EntityGraph) ([][]float64, []string) {
	var totalValue float64
	var minDate, maxDate int64
	for _, rec := range records {
		totalValue += rec.Value
		if !rec.Date.IsZero() {
			ts := rec.Date.Unix()
			if minDate == 0 || ts < minDate {
				minDate = ts
			}
			if ts > maxDate {
				maxDate = ts
			}
		}
	}
	dateSpan := float64(maxDate - minDate)

	var features [][]float64
	var ids []string
	for _, rec := range records {
		if rec.Value <= 0 {
			continue
		}
		var freq, concentration float64
		if graph != nil {
			if stats, ok := graph.VendorStats[rec.VendorID]; ok {
				freq = float64(stats.ContractCount)
				if totalValue > 0 {
					concentration = stats.TotalValue / totalValue
				}
			}
		}
		var position float64
		if dateSpan > 0 && !rec.Date.IsZero() {
			position = float64(rec.Date.Unix()-minDate) / dateSpan
		}
		features = append(features, []float64{math.Log1p(rec.Value), freq, concentration, position})
		ids = append(ids, rec.SourceID)
	}
	return features, ids
}

// normalizeColumns rescales every feature column to [0,1] in place
func normalizeColumns(features [][]float64) {
	if len(features) == 0 {
		return
	}
	dims := len(features[0])
	for col := 0; col < dims; col++ {
		lo, hi := features[0][col], features[0][col]
		for _, row := range features {
			lo = math.Min(lo, row[col])
			hi = math.Max(hi, row[col])
		}
		span := hi - lo
		if span == 0 {
			continue
		}
		for _, row := range features {
			row[col] = (row[col] - lo) / span
		}
	}
}

// isolationForestScores returns the standard anomaly score in (0,1) per
// point: shorter average isolation paths mean easier to isolate, hence
// more anomalous. Seeded so runs are reproducible.
func isolationForestScores(features [][]float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	n := len(features)
	sample := isoForestSampleSize
	if sample > n {
		sample = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sample)))) + 1

	pathSums := make([]float64, n)
	for t := 0; t < isoForestTrees; t++ {
		idx := rng.Perm(n)[:sample]
		tree := buildIsoTree(features, idx, 0, maxDepth, rng)
		for i, point := range features {
			pathSums[i] += tree.pathLength(point, 0)
		}
	}

	c := avgPathLength(float64(sample))
	scores := make([]float64, n)
	for i := range scores {
		avg := pathSums[i] / float64(isoForestTrees)
		scores[i] = math.Pow(2, -avg/c)
	}
	return scores
}

type isoNode struct {
	splitDim int
	splitVal float64
	left     *isoNode
	right    *isoNode
	size     int
}

func buildIsoTree(features [][]float64, idx []int, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if len(idx) <= 1 || depth >= maxDepth {
		return &isoNode{size: len(idx)}
	}
	dims := len(features[0])
	dim := rng.Intn(dims)
	lo, hi := features[idx[0]][dim], features[idx[0]][dim]
	for _, i := range idx {
		lo = math.Min(lo, features[i][dim])
		hi = math.Max(hi, features[i][dim])
	}
	if lo == hi {
		return &isoNode{size: len(idx)}
	}
	split := lo + rng.Float64()*(hi-lo)

	var left, right []int
	for _, i := range idx {
		if features[i][dim] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &isoNode{
		splitDim: dim,
		splitVal: split,
		left:     buildIsoTree(features, left, depth+1, maxDepth, rng),
		right:    buildIsoTree(features, right, depth+1, maxDepth, rng),
		size:     len(idx),
	}
}

func (n *isoNode) pathLength(point []float64, depth float64) float64 {
	if n.left == nil {
		return depth + avgPathLength(float64(n.size))
	}
	if point[n.splitDim] < n.splitVal {
		return n.left.pathLength(point, depth+1)
	}
	return n.right.pathLength(point, depth+1)
}

// avgPathLength is the expected path length of an unsuccessful BST search,
// the normalization constant from the isolation forest paper.
func avgPathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// oneClassScores measures each point's distance from the centroid; points
// beyond mean + 2.5 sigma of the distance distribution score positive,
// scaled by how far past the boundary they sit.
func oneClassScores(features [][]float64) []float64 {
	n := len(features)
	dims := len(features[0])
	centroid := make([]float64, dims)
	for _, row := range features {
		for col, v := range row {
			centroid[col] += v
		}
	}
	for col := range centroid {
		centroid[col] /= float64(n)
	}

	dists := make([]float64, n)
	for i, row := range features {
		dists[i] = euclidean(row, centroid)
	}
	mean, std := meanStd(dists)
	boundary := mean + oneClassSigmaFactor*std

	scores := make([]float64, n)
	if boundary == 0 {
		return scores
	}
	for i, dist := range dists {
		if dist > boundary {
			scores[i] = clamp01((dist - boundary) / boundary * 2)
			if scores[i] < 0.5 {
				scores[i] = 0.5
			}
		}
	}
	return scores
}

// lofScores computes the local outlier factor with k neighbors: the ratio
// of a point's local reachability density to its neighbors'. Values near 1
// are inliers.
func lofScores(features [][]float64) []float64 {
	n := len(features)
	k := lofNeighbors
	if k >= n {
		k = n - 1
	}

	dist := make([][]float64, n)
	neighbors := make([][]int, n)
	for i := range features {
		dist[i] = make([]float64, n)
		order := make([]int, 0, n-1)
		for j := range features {
			if i == j {
				continue
			}
			dist[i][j] = euclidean(features[i], features[j])
			order = append(order, j)
		}
		sort.Slice(order, func(a, b int) bool { return dist[i][order[a]] < dist[i][order[b]] })
		neighbors[i] = order[:k]
	}

	kDist := make([]float64, n)
	for i := range kDist {
		kDist[i] = dist[i][neighbors[i][k-1]]
	}

	lrd := make([]float64, n)
	for i := range features {
		var reachSum float64
		for _, j := range neighbors[i] {
			reachSum += math.Max(kDist[j], dist[i][j])
		}
		if reachSum == 0 {
			lrd[i] = math.Inf(1)
		} else {
			lrd[i] = float64(k) / reachSum
		}
	}

	scores := make([]float64, n)
	for i := range features {
		var ratioSum float64
		for _, j := range neighbors[i] {
			if math.IsInf(lrd[i], 1) {
				ratioSum += 1
			} else {
				ratioSum += lrd[j] / lrd[i]
			}
		}
		scores[i] = ratioSum / float64(k)
	}
	return scores
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

package vector

import "fmt"

// MaxClusterIterations caps the k-means loop
const MaxClusterIterations = 100

// CalculateClusters groups the stored vectors into k clusters with Lloyd's
// algorithm: Euclidean assignment and component-wise mean update, seeded
// with the first k vectors in insertion order. It stops when no vector
// changes cluster or after MaxClusterIterations. A cluster that loses all
// members keeps its previous centroid.
func (e *Engine) CalculateClusters(k int) ([]Cluster, error) {
	e.mu.RLock()
	dims := e.dims
	points := make([]*entry, len(e.entries))
	copy(points, e.entries)
	e.mu.RUnlock()

	if k <= 0 || k > len(points) {
		return nil, fmt.Errorf("%w: k=%d with %d stored vectors", ErrInvalidClusterCount, k, len(points))
	}

	centroids := make([][]float64, k)
	for c := range centroids {
		centroids[c] = make([]float64, dims)
		for i, x := range points[c].vector {
			centroids[c][i] = float64(x)
		}
	}

	assign := make([]int, len(points))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < MaxClusterIterations; iter++ {
		changed := false
		for p, pt := range points {
			best, bestDist := 0, squaredDistance(pt.vector, centroids[0])
			for c := 1; c < k; c++ {
				if d := squaredDistance(pt.vector, centroids[c]); d < bestDist {
					best, bestDist = c, d
				}
			}
			if assign[p] != best {
				assign[p] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for p, pt := range points {
			c := assign[p]
			counts[c]++
			for i, x := range pt.vector {
				sums[c][i] += float64(x)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for i := range centroids[c] {
				centroids[c][i] = sums[c][i] / float64(counts[c])
			}
		}
	}

	clusters := make([]Cluster, k)
	for c := range clusters {
		centroid := make([]float32, dims)
		for i, x := range centroids[c] {
			centroid[i] = float32(x)
		}
		clusters[c] = Cluster{Centroid: centroid, MemberIDs: []string{}}
	}
	for p, pt := range points {
		clusters[assign[p]].MemberIDs = append(clusters[assign[p]].MemberIDs, pt.id)
	}
	return clusters, nil
}

// Package clustering implements K-means clustering with K-means++
// initialization and silhouette-based K selection, used by the
// offline persona bootstrapping tool to surface candidate
// persona clusters from content global embeddings for human labeling.
package clustering

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lodestar/internal/core"
	"lodestar/internal/logger"
	"lodestar/internal/vectorstore"
)

// KMeansConfig holds configuration for K-means clustering.
type KMeansConfig struct {
	MaxIterations int
	Tolerance float64
	MinK int
	MaxK int
	MinSilhouette float64 // reference value for the human acceptance gate, not an automated reject
	UseOptimalK bool
}

// DefaultKMeansConfig returns sensible defaults for persona bootstrapping.
func DefaultKMeansConfig() KMeansConfig {
	return KMeansConfig{
		MaxIterations: 100,
		Tolerance: 1e-6,
		MinK: 2,
		MaxK: 8,
		MinSilhouette: 0.3,
		UseOptimalK: true,
	}
}

// KMeansClusterer clusters content global embeddings into candidate
// persona clusters with K selected by silhouette score.
type KMeansClusterer struct {
	config KMeansConfig
	log *zerolog.Logger
}

func NewKMeansClusterer(config KMeansConfig) *KMeansClusterer {
	return &KMeansClusterer{config: config, log: logger.Get()}
}

// ClusterWithOptimalK clusters the given labeled global vectors,
// selecting K by silhouette score within [MinK, MaxK]. The caller
// (the offline bootstrap tool) presents the result plus the
// silhouette analysis for human review against the MinSilhouette
// reference value — this function does not reject low-quality runs
// itself.
func (km *KMeansClusterer) ClusterWithOptimalK(vectors []vectorstore.LabeledVector) ([]core.PersonaCluster, *SilhouetteAnalysis, error) {
	embeddings, err := km.prepareData(vectors)
	if err != nil {
		return nil, nil, err
	}

	n := len(embeddings)
	minK := km.config.MinK
	maxK := km.config.MaxK
	if maxK > n {
		maxK = n
	}
	if minK > maxK {
		minK = maxK
	}
	if minK < 1 {
		return nil, nil, fmt.Errorf("no content embeddings available to cluster")
	}

	if !km.config.UseOptimalK {
		fixedK := (minK + maxK) / 2
		return km.clusterWithK(vectors, embeddings, fixedK)
	}

	km.log.Info().Int("min_k", minK).Int("max_k", maxK).Msg("finding optimal k for persona bootstrap")

	bestK := minK
	bestScore := -2.0
	distances := DistanceMatrix(embeddings, CosineDistance)

	for k := minK; k <= maxK; k++ {
		assignments, _, err := km.runKMeans(embeddings, k)
		if err != nil {
			continue
		}
		score := AverageSilhouetteScore(assignments, distances)
		km.log.Info().Int("k", k).Float64("silhouette", score).Msg("evaluated k")
		if score > bestScore {
			bestScore = score
			bestK = k
		}
	}

	km.log.Info().Int("k", bestK).Float64("silhouette", bestScore).Msg("selected k")
	if bestScore < km.config.MinSilhouette {
		km.log.Warn().Float64("score", bestScore).Float64("reference", km.config.MinSilhouette).
			Msg("clustering quality below reference; flag for human review before accepting")
	}

	return km.clusterWithK(vectors, embeddings, bestK)
}

func (km *KMeansClusterer) clusterWithK(vectors []vectorstore.LabeledVector, embeddings [][]float64, k int) ([]core.PersonaCluster, *SilhouetteAnalysis, error) {
	assignments, centroids, err := km.runKMeans(embeddings, k)
	if err != nil {
		return nil, nil, err
	}

	analysis := PerformSilhouetteAnalysis(embeddings, assignments)
	clusters := km.buildClusters(vectors, assignments, centroids, analysis)

	return clusters, analysis, nil
}

func (km *KMeansClusterer) runKMeans(embeddings [][]float64, k int) ([]int, [][]float64, error) {
	if len(embeddings) == 0 {
		return nil, nil, fmt.Errorf("no embeddings provided")
	}
	if k <= 0 || k > len(embeddings) {
		return nil, nil, fmt.Errorf("invalid k: %d (must be 1-%d)", k, len(embeddings))
	}

	dim := len(embeddings[0])
	centroids := km.initializeCentroidsKMeansPP(embeddings, k, dim)

	var assignments []int
	converged := false

	for iteration := 0; iteration < km.config.MaxIterations && !converged; iteration++ {
		newAssignments := make([]int, len(embeddings))
		for i, embedding := range embeddings {
			newAssignments[i] = km.findNearestCentroid(embedding, centroids)
		}

		if iteration > 0 {
			converged = true
			for i := range assignments {
				if assignments[i] != newAssignments[i] {
					converged = false
					break
				}
			}
		}

		assignments = newAssignments
		if !converged {
			centroids = km.updateCentroids(embeddings, assignments, k, dim)
		}
	}

	return assignments, centroids, nil
}

func (km *KMeansClusterer) initializeCentroidsKMeansPP(embeddings [][]float64, k, dim int) [][]float64 {
	centroids := make([][]float64, k)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	firstIndex := rng.Intn(len(embeddings))
	centroids[0] = make([]float64, dim)
	copy(centroids[0], embeddings[firstIndex])

	for i := 1; i < k; i++ {
		distances := make([]float64, len(embeddings))
		totalDistance := 0.0

		for j, embedding := range embeddings {
			minDist := math.Inf(1)
			for c := 0; c < i; c++ {
				dist := CosineDistance(embedding, centroids[c])
				if dist < minDist {
					minDist = dist
				}
			}
			distances[j] = minDist * minDist
			totalDistance += distances[j]
		}

		if totalDistance == 0 {
			randomIndex := rng.Intn(len(embeddings))
			centroids[i] = make([]float64, dim)
			copy(centroids[i], embeddings[randomIndex])
			continue
		}

		target := rng.Float64() * totalDistance
		cumulative := 0.0
		selectedIndex := 0
		for j, dist := range distances {
			cumulative += dist
			if cumulative >= target {
				selectedIndex = j
				break
			}
		}

		centroids[i] = make([]float64, dim)
		copy(centroids[i], embeddings[selectedIndex])
	}

	return centroids
}

func (km *KMeansClusterer) findNearestCentroid(embedding []float64, centroids [][]float64) int {
	minDistance := math.Inf(1)
	nearestIndex := 0
	for i, centroid := range centroids {
		distance := CosineDistance(embedding, centroid)
		if distance < minDistance {
			minDistance = distance
			nearestIndex = i
		}
	}
	return nearestIndex
}

func (km *KMeansClusterer) updateCentroids(embeddings [][]float64, assignments []int, k, dim int) [][]float64 {
	centroids := make([][]float64, k)
	counts := make([]int, k)
	for i := range centroids {
		centroids[i] = make([]float64, dim)
	}

	for i, embedding := range embeddings {
		clusterID := assignments[i]
		counts[clusterID]++
		for j := range embedding {
			centroids[clusterID][j] += embedding[j]
		}
	}

	for i := range centroids {
		if counts[i] > 0 {
			for j := range centroids[i] {
				centroids[i][j] /= float64(counts[i])
			}
		}
	}

	return centroids
}

func (km *KMeansClusterer) buildClusters(vectors []vectorstore.LabeledVector, assignments []int, centroids [][]float64, analysis *SilhouetteAnalysis) []core.PersonaCluster {
	k := len(centroids)
	clusters := make([]core.PersonaCluster, k)

	for i := range clusters {
		clusters[i] = core.PersonaCluster{
			ID: uuid.NewString(),
			Centroid: toFloat32(centroids[i]),
			SilhouetteScore: analysis.ClusterScores[i],
			CreatedAt: time.Now().UTC(),
		}
	}

	for i, vector := range vectors {
		clusterID := assignments[i]
		clusters[clusterID].ContentIDs = append(clusters[clusterID].ContentIDs, vector.ContentID)
	}

	return clusters
}

func (km *KMeansClusterer) prepareData(vectors []vectorstore.LabeledVector) ([][]float64, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no content embeddings found; ingest content before bootstrapping personas")
	}
	embeddings := make([][]float64, len(vectors))
	for i, v := range vectors {
		embeddings[i] = toFloat64(v.Vector)
	}
	return embeddings, nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

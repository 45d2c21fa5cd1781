package optimize

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/idkhub-com/reactive-agents/types"
)

// InitialCentroids produces count deterministic unit vectors in dim
// dimensions. Each centroid is generated from its own fixed seed, so the same
// (count, dim) always yields the same tessellation and independently seeded
// gaussians spread near-orthogonally in high dimension.
func InitialCentroids(count, dim int) [][]float32 {
	centroids := make([][]float32, 0, count)
	for i := 0; i < count; i++ {
		rng := rand.New(rand.NewSource(int64(i) + 1))
		v := make([]float64, dim)
		var norm float64
		for j := range v {
			v[j] = rng.NormFloat64()
			norm += v[j] * v[j]
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			norm = 1
		}
		c := make([]float32, dim)
		for j := range v {
			c[j] = float32(v[j] / norm)
		}
		centroids = append(centroids, c)
	}
	return centroids
}

// NewClusters builds the initial cluster set for a skill.
func NewClusters(skillID string, count, dim int) []types.Cluster {
	centroids := InitialCentroids(count, dim)
	clusters := make([]types.Cluster, 0, count)
	for i, centroid := range centroids {
		clusters = append(clusters, types.Cluster{
			SkillID:  skillID,
			Name:     fmt.Sprintf("cluster-%d", i),
			Centroid: centroid,
		})
	}
	return clusters
}

// SelectCluster picks the cluster with maximum cosine similarity to the
// embedding; near-ties go to the cluster with the lowest total_steps.
func SelectCluster(clusters []types.Cluster, embedding []float32) *types.Cluster {
	const tieEpsilon = 1e-9

	var best *types.Cluster
	bestSim := math.Inf(-1)
	for i := range clusters {
		sim := cosine(embedding, clusters[i].Centroid)
		switch {
		case sim > bestSim+tieEpsilon:
			best, bestSim = &clusters[i], sim
		case math.Abs(sim-bestSim) <= tieEpsilon && best != nil &&
			clusters[i].TotalSteps < best.TotalSteps:
			best = &clusters[i]
		}
	}
	return best
}

// ReclusterStep applies one streaming k-means pass: each embedding pulls its
// nearest centroid toward it with a step size that shrinks as the cluster
// accumulates steps, then the centroid is renormalized onto the unit sphere.
// Arm populations stay attached to their clusters.
func ReclusterStep(clusters []types.Cluster, embeddings [][]float32) []types.Cluster {
	for _, emb := range embeddings {
		c := SelectCluster(clusters, emb)
		if c == nil || len(c.Centroid) != len(emb) {
			continue
		}
		c.TotalSteps++
		eta := 1.0 / float64(c.TotalSteps+1)

		var norm float64
		for j := range c.Centroid {
			v := float64(c.Centroid[j]) + eta*(float64(emb[j])-float64(c.Centroid[j]))
			c.Centroid[j] = float32(v)
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			continue
		}
		for j := range c.Centroid {
			c.Centroid[j] = float32(float64(c.Centroid[j]) / norm)
		}
	}
	return clusters
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

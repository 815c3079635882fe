package clustering

import (
	"io"
	"log/slog"
	"math"
)

// ringBlob places n points evenly on a circle of radius r around center.
// Extra dimensions of center are copied unchanged.
func ringBlob(center []float64, r float64, n int) [][]float64 {
	points := make([][]float64, n)
	for k := 0; k < n; k++ {
		angle := 2 * math.Pi * float64(k) / float64(n)
		p := append([]float64(nil), center...)
		p[0] += r * math.Cos(angle)
		p[1] += r * math.Sin(angle)
		points[k] = p
	}
	return points
}

func concatRows(blobs ...[][]float64) [][]float64 {
	var out [][]float64
	for _, b := range blobs {
		out = append(out, b...)
	}
	return out
}

func repeatInt(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func repeatFloat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func distinct(labels []int) map[int]int {
	counts := make(map[int]int)
	for _, l := range labels {
		counts[l]++
	}
	return counts
}

// twoRings is 20 points in two tight, distant rings of 10
func twoRings() [][]float64 {
	return concatRows(
		ringBlob([]float64{0, 0}, 0.1, 10),
		ringBlob([]float64{10, 10}, 0.1, 10),
	)
}

// threeRings is 30 points in three tight, distant rings of 10
func threeRings() [][]float64 {
	return concatRows(
		ringBlob([]float64{0, 0}, 0.1, 10),
		ringBlob([]float64{20, 0}, 0.1, 10),
		ringBlob([]float64{0, 20}, 0.1, 10),
	)
}

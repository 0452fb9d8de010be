package zarr

import (
	"math"
	"strconv"
	"strings"
)

const (
	chunkBase = 256 * 1024
	chunkMin  = 128 * 1024
	chunkMax  = 64 * 1024 * 1024
)

// GuessChunks picks a chunk shape for an array of the given shape and item
// size, halving dimensions in turn until a chunk lands near a target byte
// size that grows with the size of the whole array
func GuessChunks(shape []int, itemSize int) []int {
	ndim := len(shape)
	chunks := make([]float64, ndim)
	for i, s := range shape {
		chunks[i] = math.Max(float64(s), 1)
	}

	prod := func() float64 {
		p := 1.0
		for _, c := range chunks {
			p *= c
		}
		return p
	}

	dsetSize := prod() * float64(itemSize)
	target := chunkBase * math.Pow(2, math.Log10(dsetSize/(1024*1024)))
	if target > chunkMax {
		target = chunkMax
	} else if target < chunkMin {
		target = chunkMin
	}

	for idx := 0; ndim > 0; idx++ {
		chunkBytes := prod() * float64(itemSize)
		if (chunkBytes < target || math.Abs(chunkBytes-target)/target < 0.5) && chunkBytes < chunkMax {
			break
		}
		if prod() == 1 {
			break
		}
		chunks[idx%ndim] = math.Ceil(chunks[idx%ndim] / 2)
	}

	out := make([]int, ndim)
	for i, c := range chunks {
		out[i] = int(c)
	}
	return out
}

// GridShape calculates the number of chunks in each dimension.
// For each dimension i, the number of chunks is ceil(shape[i] / chunks[i]).
func GridShape(shape, chunks []int) []int {
	grid := make([]int, len(shape))
	for i := range shape {
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid
}

// ChunkKey generates the key for a chunk given its indices and a separator.
// 0-d arrays keep their single chunk under "0".
func ChunkKey(indices []int, separator string) string {
	if len(indices) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, idx := range indices {
		if i > 0 {
			sb.WriteString(separator)
		}
		sb.WriteString(strconv.Itoa(idx))
	}
	return sb.String()
}

// saturatingProduct multiplies xs, pinning the result at math.MaxInt
// instead of overflowing
func saturatingProduct(xs []int) int {
	n := 1
	for _, x := range xs {
		if x != 0 && n > math.MaxInt/x {
			return math.MaxInt
		}
		n *= x
	}
	return n
}

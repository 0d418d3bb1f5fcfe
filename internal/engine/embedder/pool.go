package embedder

import "math"

// meanPool computes attention-mask-weighted mean pooling over the sequence
// dimension of transformer hidden states.
//
// hidden: flat [batchSize * seqLen * dim] (per-token hidden states)
// mask:   flat [batchSize * seqLen] (1 for real tokens, 0 for padding)
//
// Returns flat [batchSize * dim]. A sequence with no real tokens pools to
// the zero vector.
func meanPool(hidden []float32, mask []int64, batchSize, seqLen, dim int64) []float32 {
	out := make([]float32, batchSize*dim)
	for b := int64(0); b < batchSize; b++ {
		sum := out[b*dim : (b+1)*dim]
		var count float32
		for s := int64(0); s < seqLen; s++ {
			if mask[b*seqLen+s] != 1 {
				continue
			}
			count++
			tok := hidden[(b*seqLen+s)*dim : (b*seqLen+s+1)*dim]
			for d, v := range tok {
				sum[d] += v
			}
		}
		if count == 0 {
			continue
		}
		for d := range sum {
			sum[d] /= count
		}
	}
	return out
}

// l2Normalize returns vec scaled to unit length. The zero vector is
// returned unchanged.
func l2Normalize(vec []float32) []float32 {
	var n float64
	for _, v := range vec {
		n += float64(v) * float64(v)
	}
	out := make([]float32, len(vec))
	if n == 0 {
		return out
	}
	inv := 1 / math.Sqrt(n)
	for i, v := range vec {
		out[i] = float32(float64(v) * inv)
	}
	return out
}

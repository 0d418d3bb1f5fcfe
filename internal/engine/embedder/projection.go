package embedder

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// projectionTensor is the tensor name sentence-transformers uses for its
// Dense module.
const projectionTensor = "linear.weight"

// projection is a dense linear layer (no bias, identity activation)
// projecting vectors from inDim to outDim.
type projection struct {
	weights []float32 // row-major [outDim, inDim]
	inDim   int
	outDim  int
}

// loadProjection reads a safetensors file holding one F32 weight matrix.
func loadProjection(path string) (*projection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("projection: %w", err)
	}
	return parseProjection(data)
}

// parseProjection decodes the safetensors layout: an 8-byte little-endian
// header length, a JSON header, then raw tensor bytes.
func parseProjection(data []byte) (*projection, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("projection: file too small: %d bytes", len(data))
	}
	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > uint64(len(data)-8) {
		return nil, fmt.Errorf("projection: header length %d exceeds file size", headerLen)
	}
	body := data[8+headerLen:]

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerLen], &header); err != nil {
		return nil, fmt.Errorf("projection: parse header: %w", err)
	}
	raw, ok := header[projectionTensor]
	if !ok {
		return nil, fmt.Errorf("projection: tensor %q not found", projectionTensor)
	}

	var meta struct {
		Dtype       string `json:"dtype"`
		Shape       []int  `json:"shape"`
		DataOffsets [2]int `json:"data_offsets"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("projection: parse tensor metadata: %w", err)
	}
	if meta.Dtype != "F32" {
		return nil, fmt.Errorf("projection: expected dtype F32, got %s", meta.Dtype)
	}
	if len(meta.Shape) != 2 || meta.Shape[0] <= 0 || meta.Shape[1] <= 0 {
		return nil, fmt.Errorf("projection: expected 2D tensor, got shape %v", meta.Shape)
	}

	outDim, inDim := meta.Shape[0], meta.Shape[1]
	start, end := meta.DataOffsets[0], meta.DataOffsets[1]
	if start < 0 || end > len(body) || start > end {
		return nil, fmt.Errorf("projection: data range [%d:%d] outside %d data bytes", start, end, len(body))
	}
	if end-start != outDim*inDim*4 {
		return nil, fmt.Errorf("projection: data size %d doesn't match shape %v", end-start, meta.Shape)
	}

	weights := make([]float32, outDim*inDim)
	for i := range weights {
		weights[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[start+i*4:]))
	}
	return &projection{weights: weights, inDim: inDim, outDim: outDim}, nil
}

// apply projects one vector from inDim to outDim.
func (p *projection) apply(vec []float32) []float32 {
	out := make([]float32, p.outDim)
	for i := range out {
		row := p.weights[i*p.inDim : (i+1)*p.inDim]
		var sum float32
		for j, w := range row {
			sum += w * vec[j]
		}
		out[i] = sum
	}
	return out
}

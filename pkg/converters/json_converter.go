package converters

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/feichai0017/document-monitor/internal/models"
)

// SegmentConverter 定义片段序列化接口
type SegmentConverter interface {
	EncodeSegments(segments []models.Segment) ([]byte, error)
	DecodeSegments(data []byte) ([]models.Segment, error)
}

// JSONConverter 负责 extracted.json 与 embeddings.json 的读写格式
type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

// EncodeSegments writes the segment list as a JSON array, preserving order.
func (c *JSONConverter) EncodeSegments(segments []models.Segment) ([]byte, error) {
	if segments == nil {
		segments = []models.Segment{}
	}
	data, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("failed to encode segments: %w", err)
	}
	return data, nil
}

func (c *JSONConverter) DecodeSegments(data []byte) ([]models.Segment, error) {
	var segments []models.Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("failed to decode segments: %w", err)
	}
	return segments, nil
}

// EncodeEmbeddings writes vectors as a JSON list of lists.
func (c *JSONConverter) EncodeEmbeddings(vectors [][]float32) ([]byte, error) {
	if vectors == nil {
		vectors = [][]float32{}
	}
	data, err := json.Marshal(vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to encode embeddings: %w", err)
	}
	return data, nil
}

// DecodeEmbeddings parses a stored embeddings blob and checks every vector
// has the same dimension.
func (c *JSONConverter) DecodeEmbeddings(data []byte) ([][]float32, error) {
	var vectors [][]float32
	if err := json.Unmarshal(data, &vectors); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings: %w", err)
	}
	for i := 1; i < len(vectors); i++ {
		if len(vectors[i]) != len(vectors[0]) {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(vectors[i]), len(vectors[0]))
		}
	}
	return vectors, nil
}

// ContentHash returns the hex sha256 digest used as a Version's content_hash.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

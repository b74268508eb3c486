package postprocess

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvr-ai/go-cec/images"
	"github.com/stretchr/testify/assert"
)

func obj(class string, id int, conf float32, x1, y1, x2, y2 int) Object {
	return Object{
		ClassName:  class,
		ClassID:    id,
		Confidence: conf,
		Box:        images.Box{X1: x1, Y1: y1, X2: x2, Y2: y2},
	}
}

func TestDedupe(t *testing.T) {
	tests := []struct {
		name     string
		input    Set
		expected Set
	}{
		{
			name: "higher confidence survives",
			input: Set{
				obj("chair", 0, 0.8, 0, 0, 100, 100),
				obj("chair", 0, 0.6, 1, 1, 100, 100),
			},
			expected: Set{obj("chair", 0, 0.8, 0, 0, 100, 100)},
		},
		{
			name: "higher confidence survives when second",
			input: Set{
				obj("chair", 0, 0.6, 0, 0, 100, 100),
				obj("chair", 0, 0.8, 1, 1, 100, 100),
			},
			expected: Set{obj("chair", 0, 0.8, 1, 1, 100, 100)},
		},
		{
			name: "equal confidence keeps the earlier object",
			input: Set{
				obj("chair", 0, 0.7, 0, 0, 100, 100),
				obj("chair", 0, 0.7, 1, 1, 100, 100),
			},
			expected: Set{obj("chair", 0, 0.7, 0, 0, 100, 100)},
		},
		{
			name: "different classes never suppress each other",
			input: Set{
				obj("chair", 0, 0.8, 0, 0, 100, 100),
				obj("table", 1, 0.6, 0, 0, 100, 100),
			},
			expected: Set{
				obj("chair", 0, 0.8, 0, 0, 100, 100),
				obj("table", 1, 0.6, 0, 0, 100, 100),
			},
		},
		{
			name: "overlap at the threshold is kept",
			input: Set{
				// 90x100 inside 100x100: overlap exactly 0.9
				obj("chair", 0, 0.8, 0, 0, 100, 100),
				obj("chair", 0, 0.6, 0, 0, 90, 100),
			},
			expected: Set{
				obj("chair", 0, 0.8, 0, 0, 100, 100),
				obj("chair", 0, 0.6, 0, 0, 90, 100),
			},
		},
		{
			name: "discarded object no longer suppresses",
			input: Set{
				// b suppresses a, then c is compared with b only.
				obj("cup", 2, 0.5, 0, 0, 100, 100),
				obj("cup", 2, 0.9, 2, 0, 102, 100),
				obj("cup", 2, 0.7, 300, 300, 400, 400),
			},
			expected: Set{
				obj("cup", 2, 0.9, 2, 0, 102, 100),
				obj("cup", 2, 0.7, 300, 300, 400, 400),
			},
		},
		{
			name: "survivor order follows the source",
			input: Set{
				obj("table", 1, 0.5, 0, 0, 10, 10),
				obj("chair", 0, 0.4, 50, 50, 60, 60),
				obj("table", 1, 0.9, 0, 0, 10, 10),
				obj("chair", 0, 0.3, 200, 200, 260, 260),
			},
			expected: Set{
				obj("chair", 0, 0.4, 50, 50, 60, 60),
				obj("table", 1, 0.9, 0, 0, 10, 10),
				obj("chair", 0, 0.3, 200, 200, 260, 260),
			},
		},
		{
			name:     "empty set",
			input:    Set{},
			expected: Set{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedupe(tt.input, nil)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("Dedupe() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDedupe_NoOverlapIsIdentity(t *testing.T) {
	input := Set{
		obj("person", 0, 0.9, 0, 0, 10, 10),
		obj("person", 0, 0.8, 20, 20, 30, 30),
		obj("person", 0, 0.7, 5, 5, 15, 15),
		obj("dog", 1, 0.6, 0, 0, 10, 10),
	}

	once := Dedupe(input, nil)
	assert.Equal(t, input, once)
	assert.Equal(t, once, Dedupe(once, nil), "dedupe must be idempotent")
}

func TestDedupe_Idempotent(t *testing.T) {
	input := Set{
		obj("person", 0, 0.9, 0, 0, 100, 100),
		obj("person", 0, 0.95, 1, 1, 100, 100),
		obj("person", 0, 0.4, 0, 0, 99, 99),
		obj("dog", 1, 0.6, 500, 500, 600, 600),
		obj("dog", 1, 0.6, 500, 500, 600, 601),
	}

	once := Dedupe(input, nil)
	assert.Equal(t, once, Dedupe(once, nil))
	assert.Len(t, once, 2)
}

func TestDedupe_DoesNotModifyInput(t *testing.T) {
	input := Set{
		obj("person", 0, 0.6, 0, 0, 100, 100),
		obj("person", 0, 0.8, 0, 0, 100, 100),
	}
	snapshot := append(Set(nil), input...)

	_ = Dedupe(input, nil)
	assert.Equal(t, snapshot, input)
}

func TestDedupe_CustomThreshold(t *testing.T) {
	input := Set{
		obj("person", 0, 0.9, 0, 0, 10, 10),
		obj("person", 0, 0.8, 5, 5, 15, 15), // overlap ≈ 0.1429
	}

	assert.Len(t, Dedupe(input, &DedupeConfig{OverlapThreshold: 0.1}), 1)
	assert.Len(t, Dedupe(input, &DedupeConfig{OverlapThreshold: 0.2}), 2)
}

package postprocess

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		main     Set
		check    Set
		config   *ReconcileConfig
		expected Set
	}{
		{
			name: "match above threshold keeps the main object",
			main: Set{obj("chair", 0, 0.9, 0, 0, 100, 100)},
			// 100x85 inside 100x100: overlap 0.85
			check:    Set{obj("chair", 0, 0.5, 0, 0, 100, 85)},
			expected: Set{obj("chair", 0, 0.9, 0, 0, 100, 100)},
		},
		{
			name:     "match exactly at threshold keeps the main object",
			main:     Set{obj("chair", 0, 0.9, 0, 0, 100, 100)},
			check:    Set{obj("chair", 0, 0.5, 0, 0, 100, 80)},
			expected: Set{obj("chair", 0, 0.9, 0, 0, 100, 100)},
		},
		{
			name:     "empty check set removes the main object",
			main:     Set{obj("chair", 0, 0.9, 0, 0, 100, 100)},
			check:    Set{},
			expected: Set{},
		},
		{
			name:     "overlap below threshold removes the main object",
			main:     Set{obj("chair", 0, 0.9, 0, 0, 100, 100)},
			check:    Set{obj("chair", 0, 0.9, 0, 0, 100, 70)},
			expected: Set{},
		},
		{
			name:     "other classes in the check set are not evidence",
			main:     Set{obj("chair", 0, 0.9, 0, 0, 100, 100)},
			check:    Set{obj("table", 1, 0.9, 0, 0, 100, 100)},
			expected: Set{},
		},
		{
			name: "class filter leaves other classes untouched",
			main: Set{
				obj("A", 0, 0.9, 0, 0, 100, 100),
				obj("A", 0, 0.8, 300, 300, 400, 400),
			},
			check:  Set{},
			config: &ReconcileConfig{OverlapThreshold: 0.8, Classes: []string{"B"}},
			expected: Set{
				obj("A", 0, 0.9, 0, 0, 100, 100),
				obj("A", 0, 0.8, 300, 300, 400, 400),
			},
		},
		{
			name: "class filter only checks named classes",
			main: Set{
				obj("person", 0, 0.9, 0, 0, 100, 100),
				obj("chair", 1, 0.8, 300, 300, 400, 400),
				obj("person", 0, 0.7, 500, 500, 600, 600),
			},
			check: Set{
				obj("person", 0, 0.9, 0, 0, 100, 100),
			},
			config: &ReconcileConfig{OverlapThreshold: 0.8, Classes: []string{"person"}},
			expected: Set{
				obj("person", 0, 0.9, 0, 0, 100, 100),
				obj("chair", 1, 0.8, 300, 300, 400, 400),
			},
		},
		{
			name: "a check object confirms at most one main object",
			main: Set{
				obj("cup", 0, 0.9, 0, 0, 100, 100),
				obj("cup", 0, 0.8, 0, 0, 100, 99),
			},
			check:    Set{obj("cup", 0, 0.9, 0, 0, 100, 100)},
			expected: Set{obj("cup", 0, 0.9, 0, 0, 100, 100)},
		},
		{
			name: "order of retained objects follows the main set",
			main: Set{
				obj("b", 1, 0.9, 0, 0, 10, 10),
				obj("a", 0, 0.9, 100, 100, 110, 110),
				obj("b", 1, 0.9, 200, 200, 210, 210),
			},
			check: Set{
				obj("a", 0, 0.9, 100, 100, 110, 110),
				obj("b", 1, 0.9, 200, 200, 210, 210),
				obj("b", 1, 0.9, 0, 0, 10, 10),
			},
			expected: Set{
				obj("b", 1, 0.9, 0, 0, 10, 10),
				obj("a", 0, 0.9, 100, 100, 110, 110),
				obj("b", 1, 0.9, 200, 200, 210, 210),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.main, tt.check, tt.config)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("Reconcile() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReconcile_PicksBestCandidate(t *testing.T) {
	main := Set{obj("chair", 0, 0.9, 0, 0, 100, 100)}
	check := Set{
		obj("chair", 0, 0.9, 0, 0, 100, 85), // 0.85
		obj("chair", 0, 0.9, 0, 0, 100, 95), // 0.95
		obj("chair", 0, 0.9, 0, 0, 100, 90), // 0.90
	}

	kept, matches := ReconcileWithMatches(main, check, nil)
	assert.Equal(t, main, kept)
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].Main)
	assert.Equal(t, 1, matches[0].Check)
	assert.InDelta(t, 0.95, matches[0].Overlap, 1e-9)
}

func TestReconcile_TieGoesToFirstCandidate(t *testing.T) {
	main := Set{obj("chair", 0, 0.9, 0, 0, 100, 100)}
	check := Set{
		obj("chair", 0, 0.9, 0, 0, 100, 90),
		obj("chair", 0, 0.9, 0, 10, 100, 100),
	}

	_, matches := ReconcileWithMatches(main, check, nil)
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].Check)
}

func TestReconcile_OneToOne(t *testing.T) {
	main := Set{
		obj("person", 0, 0.9, 0, 0, 100, 100),
		obj("person", 0, 0.9, 200, 0, 300, 100),
		obj("person", 0, 0.9, 400, 0, 500, 100),
		obj("dog", 1, 0.9, 0, 200, 100, 300),
	}
	check := Set{
		obj("dog", 1, 0.9, 0, 200, 100, 295),
		obj("person", 0, 0.9, 400, 0, 500, 98),
		obj("person", 0, 0.9, 0, 0, 100, 98),
		obj("person", 0, 0.9, 200, 0, 300, 98),
	}

	kept, matches := ReconcileWithMatches(main, check, nil)
	assert.Equal(t, main, kept)
	require.Len(t, matches, len(main))

	used := make(map[int]bool)
	for _, m := range matches {
		assert.False(t, used[m.Check], "check object %d matched twice", m.Check)
		used[m.Check] = true
		assert.Equal(t, main[m.Main].ClassName, check[m.Check].ClassName)
	}
}

func TestReconcile_GreedyIsNotOptimal(t *testing.T) {
	// main[0] takes check[0], the only candidate main[1] could use, so main[1]
	// is dropped although pairing main[0]-check[1] and main[1]-check[0] would
	// keep both.
	main := Set{
		obj("box", 0, 0.9, 0, 0, 100, 100),
		obj("box", 0, 0.9, 0, 5, 100, 100),
	}
	check := Set{
		obj("box", 0, 0.9, 0, 0, 100, 95), // 0.95 vs main[0], 0.90 vs main[1]
		obj("box", 0, 0.9, 0, 0, 100, 85), // 0.85 vs main[0], 0.80 vs main[1]
	}

	kept, matches := ReconcileWithMatches(main, check, &ReconcileConfig{OverlapThreshold: 0.85})
	assert.Equal(t, Set{main[0]}, kept)
	require.Len(t, matches, 1)
	assert.Equal(t, Match{Main: 0, Check: 0, Overlap: 0.95}, matches[0])
}

func TestReconcile_DoesNotModifyInputs(t *testing.T) {
	main := Set{
		obj("person", 0, 0.9, 0, 0, 100, 100),
		obj("person", 0, 0.9, 500, 500, 600, 600),
	}
	check := Set{obj("person", 0, 0.9, 0, 0, 100, 100)}
	mainSnapshot := append(Set(nil), main...)
	checkSnapshot := append(Set(nil), check...)

	kept := Reconcile(main, check, nil)
	assert.Len(t, kept, 1)
	assert.Equal(t, mainSnapshot, main)
	assert.Equal(t, checkSnapshot, check)
}

package differ_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aviarylabs/rangesync/pkg/differ"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a    any
		b    any
		want bool
	}{
		{
			name: "identical primitives",
			a:    "hello",
			b:    "hello",
			want: true,
		},
		{
			name: "numeric types normalize",
			a:    5,
			b:    float64(5),
			want: true,
		},
		{
			name: "different primitives",
			a:    "hello",
			b:    "world",
			want: false,
		},
		{
			name: "nil equals nil",
			a:    nil,
			b:    nil,
			want: true,
		},
		{
			name: "nil not equal to value",
			a:    nil,
			b:    false,
			want: false,
		},
		{
			name: "maps key order independent",
			a:    map[string]any{"lat": 60.17, "lon": 24.94},
			b:    map[string]any{"lon": 24.94, "lat": 60.17},
			want: true,
		},
		{
			name: "nested map difference",
			a:    map[string]any{"filter": map[string]any{"threshold": 0.01}},
			b:    map[string]any{"filter": map[string]any{"threshold": 0.03}},
			want: false,
		},
		{
			name: "extra key",
			a:    map[string]any{"lat": 60.17},
			b:    map[string]any{"lat": 60.17, "lon": 24.94},
			want: false,
		},
		{
			name: "slices order sensitive",
			a:    []any{"a", "b"},
			b:    []any{"b", "a"},
			want: false,
		},
		{
			name: "equal slices",
			a:    []any{"a", "b"},
			b:    []any{"a", "b"},
			want: true,
		},
		{
			name: "string slice normalizes to any slice",
			a:    []string{"a", "b"},
			b:    []any{"a", "b"},
			want: true,
		},
		{
			name: "nil slice equals empty slice",
			a:    map[string]any{"include": []any{}},
			b:    map[string]any{"include": []any{}},
			want: true,
		},
		{
			name: "map not equal to slice",
			a:    map[string]any{},
			b:    []any{},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, differ.Equal(tt.a, tt.b))
		})
	}
}

func TestEqualReflexive(t *testing.T) {
	// Equal(a, a) must hold for any value regardless of key order.
	values := []any{
		nil,
		true,
		3.14,
		"wren",
		[]any{1, "two", map[string]any{"three": 3}},
		map[string]any{
			"main":    map[string]any{"name": "station-1"},
			"birdnet": map[string]any{"latitude": 60.17, "longitude": 24.94},
			"species": map[string]any{"include": []string{"Eurasian Wren"}},
		},
	}

	for _, v := range values {
		assert.True(t, differ.Equal(v, v))
	}
}

func TestCopyIndependence(t *testing.T) {
	original := map[string]any{
		"location": map[string]any{"latitude": 60.17},
		"include":  []any{"Eurasian Wren"},
	}

	copied := differ.Copy(original).(map[string]any)
	copied["location"].(map[string]any)["latitude"] = 0.0
	copied["include"].([]any)[0] = "Great Tit"

	assert.Equal(t, 60.17, original["location"].(map[string]any)["latitude"])
	assert.Equal(t, "Eurasian Wren", original["include"].([]any)[0])
}

func TestDiffPaths(t *testing.T) {
	a := map[string]any{
		"birdnet": map[string]any{"latitude": 60.17, "longitude": 24.94},
		"main":    map[string]any{"name": "station-1"},
	}
	b := map[string]any{
		"birdnet": map[string]any{"latitude": 61.0, "longitude": 24.94},
		"main":    map[string]any{"name": "station-1"},
	}

	paths := differ.DiffPaths(a, b)
	assert.Equal(t, []string{"birdnet.latitude"}, paths)

	assert.Empty(t, differ.DiffPaths(a, a))
}

func TestDiffPathsMissingKey(t *testing.T) {
	a := map[string]any{"main": map[string]any{"name": "station-1"}}
	b := map[string]any{}

	paths := differ.DiffPaths(a, b)
	assert.Equal(t, []string{"main"}, paths)
}

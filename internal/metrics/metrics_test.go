package metrics_test

import (
	"strings"
	"testing"

	"github.com/born-ml/tumorclf/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var example = metrics.ConfusionMatrix{
	{5, 1, 0},
	{0, 4, 1},
	{1, 0, 3},
}

func TestCounts_Example(t *testing.T) {
	c := metrics.Counts(example, 0)
	assert.Equal(t, metrics.ClassCounts{TP: 5, FP: 1, FN: 1, TN: 8}, c)

	c = metrics.Counts(example, 1)
	assert.Equal(t, metrics.ClassCounts{TP: 4, FP: 1, FN: 1, TN: 9}, c)
}

func TestCounts_SumToTotal(t *testing.T) {
	matrices := []metrics.ConfusionMatrix{
		example,
		{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}},
		{{10, 2}, {3, 7}},
		{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 12}, {13, 14, 15, 16}},
	}
	for _, cm := range matrices {
		for i := range cm {
			assert.Equal(t, cm.Total(), metrics.Counts(cm, i).Total())
		}
	}
}

func TestComputeStats_Example(t *testing.T) {
	s, err := metrics.ComputeStats(example)
	require.NoError(t, err)

	// Class 0: tp=5 fp=1 fn=1 tn=8 over 15 samples.
	const tol = 1e-6
	assert.InDelta(t, 13.0/15.0, s.Accuracy[0], tol)
	assert.InDelta(t, 5.0/6.0, s.Precision[0], tol)
	assert.InDelta(t, 5.0/6.0, s.Sensitivity[0], tol)
	assert.InDelta(t, 8.0/9.0, s.Specificity[0], tol)

	// Class 2: tp=3 fp=1 fn=1 tn=10.
	assert.InDelta(t, 13.0/15.0, s.Accuracy[2], tol)
	assert.InDelta(t, 3.0/4.0, s.Precision[2], tol)
	assert.InDelta(t, 3.0/4.0, s.Sensitivity[2], tol)
	assert.InDelta(t, 10.0/11.0, s.Specificity[2], tol)
}

func TestComputeStats_PerfectClassifier(t *testing.T) {
	s, err := metrics.ComputeStats(metrics.ConfusionMatrix{
		{10, 0, 0},
		{0, 7, 0},
		{0, 0, 4},
	})
	require.NoError(t, err)

	for _, vec := range [][]float64{s.Accuracy, s.Precision, s.Specificity, s.Sensitivity} {
		require.Len(t, vec, 3)
		for _, v := range vec {
			assert.InDelta(t, 1.0, v, 1e-6)
			assert.Less(t, v, 1.0)
		}
	}
}

func TestComputeStats_AllZero(t *testing.T) {
	s, err := metrics.ComputeStats(metrics.Zero(3))
	require.NoError(t, err)

	zeros := []float64{0, 0, 0}
	assert.Equal(t, zeros, s.Accuracy)
	assert.Equal(t, zeros, s.Precision)
	assert.Equal(t, zeros, s.Specificity)
	assert.Equal(t, zeros, s.Sensitivity)
}

func TestComputeStats_Permutation(t *testing.T) {
	perm := []int{2, 0, 1}
	permuted := metrics.Zero(3)
	for i := range example {
		for j := range example[i] {
			permuted[i][j] = example[perm[i]][perm[j]]
		}
	}

	orig, err := metrics.ComputeStats(example)
	require.NoError(t, err)
	got, err := metrics.ComputeStats(permuted)
	require.NoError(t, err)

	for i, p := range perm {
		assert.InDelta(t, orig.Accuracy[p], got.Accuracy[i], 1e-12)
		assert.InDelta(t, orig.Precision[p], got.Precision[i], 1e-12)
		assert.InDelta(t, orig.Specificity[p], got.Specificity[i], 1e-12)
		assert.InDelta(t, orig.Sensitivity[p], got.Sensitivity[i], 1e-12)
	}
}

func TestComputeStats_DoesNotMutate(t *testing.T) {
	cm := metrics.ConfusionMatrix{{1, 2}, {3, 4}}
	_, err := metrics.ComputeStats(cm)
	require.NoError(t, err)
	assert.Equal(t, metrics.ConfusionMatrix{{1, 2}, {3, 4}}, cm)
}

func TestComputeStats_Errors(t *testing.T) {
	tests := []struct {
		name string
		cm   metrics.ConfusionMatrix
		want error
	}{
		{"empty", metrics.ConfusionMatrix{}, metrics.ErrEmptyMatrix},
		{"nil", nil, metrics.ErrEmptyMatrix},
		{"ragged", metrics.ConfusionMatrix{{1, 2, 3}, {4, 5}, {6, 7, 8}}, metrics.ErrNotSquare},
		{"wide", metrics.ConfusionMatrix{{1, 2, 3}, {4, 5, 6}}, metrics.ErrNotSquare},
		{"negative", metrics.ConfusionMatrix{{1, -1}, {0, 2}}, metrics.ErrNegativeCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := metrics.ComputeStats(tt.cm)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, s)
		})
	}
}

func TestNewConfusionMatrix(t *testing.T) {
	labels := []int32{0, 0, 1, 2, 2, 2}
	preds := []int32{0, 1, 1, 2, 0, 2}

	cm, err := metrics.NewConfusionMatrix(labels, preds, 3)
	require.NoError(t, err)
	assert.Equal(t, metrics.ConfusionMatrix{
		{1, 1, 0},
		{0, 1, 0},
		{1, 0, 2},
	}, cm)
	assert.Equal(t, 6, cm.Total())
	assert.Equal(t, 4, cm.Correct())
	assert.InDelta(t, 4.0/6.0, metrics.MeanAccuracy(cm), 1e-12)
}

func TestNewConfusionMatrix_Errors(t *testing.T) {
	_, err := metrics.NewConfusionMatrix([]int32{0}, []int32{0, 1}, 3)
	assert.ErrorIs(t, err, metrics.ErrLengthMismatch)

	_, err = metrics.NewConfusionMatrix([]int32{3}, []int32{0}, 3)
	assert.ErrorIs(t, err, metrics.ErrClassRange)

	_, err = metrics.NewConfusionMatrix([]int32{0}, []int32{-1}, 3)
	assert.ErrorIs(t, err, metrics.ErrClassRange)
}

func TestReadConfusionMatrix(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"whitespace", "5 1 0\n0 4 1\n1 0 3\n"},
		{"csv", "5,1,0\n0,4,1\n1,0,3"},
		{"numpy", "[[5 1 0]\n [0 4 1]\n [1 0 3]]\n"},
		{"comments", "# true rows\n\n5 1 0\n0 4 1\n1 0 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm, err := metrics.ReadConfusionMatrix(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, example, cm)
		})
	}
}

func TestReadConfusionMatrix_Errors(t *testing.T) {
	_, err := metrics.ReadConfusionMatrix(strings.NewReader(""))
	assert.ErrorIs(t, err, metrics.ErrEmptyMatrix)

	_, err = metrics.ReadConfusionMatrix(strings.NewReader("1 2\n3\n"))
	assert.ErrorIs(t, err, metrics.ErrNotSquare)

	_, err = metrics.ReadConfusionMatrix(strings.NewReader("1 x\n3 4\n"))
	assert.Error(t, err)
}

func TestConfusionMatrix_String(t *testing.T) {
	assert.Equal(t, "[5 1 0]\n[0 4 1]\n[1 0 3]", example.String())
}

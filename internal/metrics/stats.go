package metrics

// Epsilon guards every ratio against division by zero.
const Epsilon = 1e-7

// Stats holds one-vs-rest statistics, one entry per class.
type Stats struct {
	Accuracy    []float64
	Precision   []float64
	Specificity []float64
	Sensitivity []float64
}

// ClassCounts is the one-vs-rest tally for a single class.
type ClassCounts struct {
	TP int
	FP int
	FN int
	TN int
}

// Total returns tp+fp+fn+tn, which equals the matrix grand total.
func (c ClassCounts) Total() int {
	return c.TP + c.FP + c.FN + c.TN
}

// Counts returns the one-vs-rest counts for class i of a valid matrix.
//
//	tp = cm[i][i]
//	fp = column i sum - tp
//	fn = row i sum - tp
//	tn = sum of cm[k][j] for k != i and j != i
func Counts(cm ConfusionMatrix, i int) ClassCounts {
	tp := cm[i][i]
	c := ClassCounts{
		TP: tp,
		FP: cm.ColSum(i) - tp,
		FN: cm.RowSum(i) - tp,
	}
	for k, row := range cm {
		if k == i {
			continue
		}
		for j, v := range row {
			if j != i {
				c.TN += v
			}
		}
	}
	return c
}

// ComputeStats derives accuracy, precision, specificity and sensitivity for
// every class of cm.
//
//	accuracy    = (tp+tn) / (tp+fp+tn+fn+eps)
//	precision   = tp / (tp+fp+eps)
//	specificity = tn / (tn+fp+eps)
//	sensitivity = tp / (tp+fn+eps)
//
// A class with no samples yields zeros rather than an error.
func ComputeStats(cm ConfusionMatrix) (*Stats, error) {
	if err := cm.Validate(); err != nil {
		return nil, err
	}

	n := cm.NumClasses()
	s := &Stats{
		Accuracy:    make([]float64, n),
		Precision:   make([]float64, n),
		Specificity: make([]float64, n),
		Sensitivity: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		c := Counts(cm, i)
		tp, fp, fn, tn := float64(c.TP), float64(c.FP), float64(c.FN), float64(c.TN)

		s.Accuracy[i] = (tp + tn) / (tp + fp + tn + fn + Epsilon)
		s.Sensitivity[i] = tp / (tp + fn + Epsilon)
		s.Specificity[i] = tn / (tn + fp + Epsilon)
		s.Precision[i] = tp / (tp + fp + Epsilon)
	}
	return s, nil
}

// MeanAccuracy returns the overall fraction of correct predictions,
// trace / total, or 0 for an empty matrix.
func MeanAccuracy(cm ConfusionMatrix) float64 {
	total := cm.Total()
	if total == 0 {
		return 0
	}
	return float64(cm.Correct()) / float64(total)
}

// Package metrics computes confusion matrices and per-class one-vs-rest
// classification statistics.
package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DefaultClasses is the number of tumor categories.
const DefaultClasses = 3

var (
	// ErrEmptyMatrix is returned for a matrix without rows.
	ErrEmptyMatrix = errors.New("confusion matrix is empty")
	// ErrNotSquare is returned when a row length differs from the row count.
	ErrNotSquare = errors.New("confusion matrix is not square")
	// ErrNegativeCount is returned when a cell holds a negative count.
	ErrNegativeCount = errors.New("confusion matrix has a negative count")
	// ErrLengthMismatch is returned when labels and predictions differ in length.
	ErrLengthMismatch = errors.New("labels and predictions differ in length")
	// ErrClassRange is returned for a class index outside [0, numClasses).
	ErrClassRange = errors.New("class index out of range")
)

// ConfusionMatrix counts test samples: entry (i, j) is the number of samples
// of true class i predicted as class j.
type ConfusionMatrix [][]int

// NewConfusionMatrix tallies labels against predictions.
func NewConfusionMatrix(labels, predictions []int32, numClasses int) (ConfusionMatrix, error) {
	if len(labels) != len(predictions) {
		return nil, fmt.Errorf("%w: %d labels, %d predictions", ErrLengthMismatch, len(labels), len(predictions))
	}
	if numClasses <= 0 {
		return nil, fmt.Errorf("%w: %d classes", ErrEmptyMatrix, numClasses)
	}

	cm := Zero(numClasses)
	for i, label := range labels {
		pred := predictions[i]
		if label < 0 || int(label) >= numClasses {
			return nil, fmt.Errorf("%w: label %d at %d", ErrClassRange, label, i)
		}
		if pred < 0 || int(pred) >= numClasses {
			return nil, fmt.Errorf("%w: prediction %d at %d", ErrClassRange, pred, i)
		}
		cm[label][pred]++
	}
	return cm, nil
}

// Zero returns an n x n matrix of zeros.
func Zero(n int) ConfusionMatrix {
	cm := make(ConfusionMatrix, n)
	for i := range cm {
		cm[i] = make([]int, n)
	}
	return cm
}

// Validate reports whether cm is a non-empty square matrix of
// non-negative counts.
func (cm ConfusionMatrix) Validate() error {
	n := len(cm)
	if n == 0 {
		return ErrEmptyMatrix
	}
	for i, row := range cm {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrNotSquare, i, len(row), n)
		}
		for j, v := range row {
			if v < 0 {
				return fmt.Errorf("%w: (%d, %d) = %d", ErrNegativeCount, i, j, v)
			}
		}
	}
	return nil
}

// NumClasses returns the matrix dimension.
func (cm ConfusionMatrix) NumClasses() int {
	return len(cm)
}

// Total returns the sum of all cells.
func (cm ConfusionMatrix) Total() int {
	total := 0
	for _, row := range cm {
		for _, v := range row {
			total += v
		}
	}
	return total
}

// Correct returns the trace, the number of correct predictions.
func (cm ConfusionMatrix) Correct() int {
	correct := 0
	for i := range cm {
		correct += cm[i][i]
	}
	return correct
}

// RowSum returns the number of samples whose true class is i.
func (cm ConfusionMatrix) RowSum(i int) int {
	sum := 0
	for _, v := range cm[i] {
		sum += v
	}
	return sum
}

// ColSum returns the number of samples predicted as class j.
func (cm ConfusionMatrix) ColSum(j int) int {
	sum := 0
	for _, row := range cm {
		sum += row[j]
	}
	return sum
}

// String formats the matrix one row per line.
func (cm ConfusionMatrix) String() string {
	var sb strings.Builder
	for i, row := range cm {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteByte('[')
		for j, v := range row {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strconv.Itoa(v))
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

// ReadConfusionMatrix parses one matrix row per line. Cells are separated
// by whitespace or commas; square brackets are ignored so numpy's printed
// form is accepted. Blank lines and lines starting with '#' are skipped.
func ReadConfusionMatrix(r io.Reader) (ConfusionMatrix, error) {
	replacer := strings.NewReplacer("[", " ", "]", " ", ",", " ")

	var cm ConfusionMatrix
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(replacer.Replace(text))
		if len(fields) == 0 {
			continue
		}
		row := make([]int, len(fields))
		for j, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse cell %q: %w", line, f, err)
			}
			row[j] = v
		}
		cm = append(cm, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read confusion matrix: %w", err)
	}
	if err := cm.Validate(); err != nil {
		return nil, err
	}
	return cm, nil
}

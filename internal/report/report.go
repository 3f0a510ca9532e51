// Package report formats evaluation statistics for the results file and the
// console.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/born-ml/tumorclf/internal/metrics"
)

// vectorPrecision is the number of decimals written per statistic.
const vectorPrecision = 8

// FormatVector renders values as "[v0 v1 v2]" with fixed decimals.
func FormatVector(values []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatFloat(v, 'f', vectorPrecision, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}

// FormatLine renders one results line, including the trailing newline:
//
//	<process> <image_size> || accuracy: [..], precision: [..], specificity: [..], sensitivity: [..]
func FormatLine(process string, imageSize int, s *metrics.Stats) string {
	return fmt.Sprintf("%s %d || accuracy: %s, precision: %s, specificity: %s, sensitivity: %s\n",
		process, imageSize,
		FormatVector(s.Accuracy),
		FormatVector(s.Precision),
		FormatVector(s.Specificity),
		FormatVector(s.Sensitivity))
}

// AppendStats appends the results line to path, creating the file and its
// parent directories when missing. Earlier lines are never modified.
func AppendStats(path, process string, imageSize int, s *metrics.Stats) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create stats directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open stats file: %w", err)
	}
	if _, err := io.WriteString(f, FormatLine(process, imageSize, s)); err != nil {
		_ = f.Close()
		return fmt.Errorf("write stats file: %w", err)
	}
	return f.Close()
}

// Summary prints the confusion matrix and the four statistic vectors.
func Summary(w io.Writer, cm metrics.ConfusionMatrix, s *metrics.Stats) error {
	_, err := fmt.Fprintf(w,
		"confusion matrix:\n%s\naccuracy: %s\nprecision: %s\nspecificity: %s\nsensitivity: %s\n",
		cm,
		FormatVector(s.Accuracy),
		FormatVector(s.Precision),
		FormatVector(s.Specificity),
		FormatVector(s.Sensitivity))
	return err
}

package chart

import (
	"bytes"
	"encoding/base64"
	"fmt"

	gochart "github.com/wcharczuk/go-chart/v2"
)

// PiePNG renders a pie chart from parallel label/value slices and returns
// it base64-encoded for embedding in an image response.
func PiePNG(title string, labels []string, values []float64) (string, error) {
	if len(labels) == 0 || len(labels) != len(values) {
		return "", fmt.Errorf("need matching labels and values, got %d and %d", len(labels), len(values))
	}

	slices := make([]gochart.Value, len(labels))
	for i := range labels {
		slices[i] = gochart.Value{Label: labels[i], Value: values[i]}
	}

	pie := gochart.PieChart{
		Title:  title,
		Width:  512,
		Height: 512,
		Values: slices,
	}

	var buf bytes.Buffer
	if err := pie.Render(gochart.PNG, &buf); err != nil {
		return "", fmt.Errorf("failed to render pie chart: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

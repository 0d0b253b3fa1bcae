package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// timeLayout is fixed width so lexical order in SQLite matches time order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return formatTime(value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// encodeBBox stores boxes rounded to three decimals.
func encodeBBox(box [4]float64) (string, error) {
	rounded := make([]float64, len(box))
	for i, v := range box {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("bbox component %d is not finite", i)
		}
		rounded[i] = math.Round(v*1000) / 1000
	}
	data, err := json.Marshal(rounded)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeBBox(raw string) ([4]float64, error) {
	var values []float64
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return [4]float64{}, fmt.Errorf("decode bbox: %w", err)
	}
	if len(values) != 4 {
		return [4]float64{}, fmt.Errorf("decode bbox: expected 4 values, got %d", len(values))
	}
	return [4]float64{values[0], values[1], values[2], values[3]}, nil
}

func encodeVector(values []float64) (string, error) {
	if len(values) == 0 {
		return "", errors.New("vector is empty")
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("vector component %d is not finite", i)
		}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeVector(raw string) ([]float64, error) {
	var values []float64
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return values, nil
}

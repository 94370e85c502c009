package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatNano(t *testing.T) {
	now := time.Now()
	sameYear := time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.Local)
	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.Local)

	t.Run("zero", func(t *testing.T) {
		assert.Equal(t, "-", formatNano(0))
	})

	t.Run("same year", func(t *testing.T) {
		result := formatNano(sameYear.UnixNano())
		assert.Contains(t, result, "Mar")
		assert.Contains(t, result, "15")
		assert.Contains(t, result, "10:30")
	})

	t.Run("different year", func(t *testing.T) {
		result := formatNano(diffYear.UnixNano())
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "25")
		assert.Contains(t, result, "2020")
	})
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0f8fad5b", shortID("0f8fad5b-d9cb-469f-a165-70867728950e"))
	assert.Equal(t, "run-1", shortID("run-1"))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	headers := []string{"RUN ID", "STATUS", "RETRIES"}
	rows := [][]string{
		{"run-1", "completed", "0"},
		{"run-long-id", "pending", "2"},
	}

	printTable(&buf, headers, rows)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)

	// Columns align on the widest cell.
	assert.Equal(t, strings.Index(lines[0], "STATUS"), strings.Index(lines[2], "pending"))
	assert.Equal(t, strings.Index(lines[0], "RETRIES"), strings.Index(lines[1], "0"))

	// No trailing padding after the last column.
	for _, line := range lines {
		assert.Equal(t, strings.TrimRight(line, " "), line)
	}
}

func TestParseMetrics(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		metrics, err := parseMetrics([]string{"weight_lbs=184.5", "feed_lbs=12"})
		assert.NoError(t, err)
		assert.Equal(t, map[string]float64{"weight_lbs": 184.5, "feed_lbs": 12}, metrics)
	})

	t.Run("empty input", func(t *testing.T) {
		metrics, err := parseMetrics(nil)
		assert.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("missing value", func(t *testing.T) {
		_, err := parseMetrics([]string{"weight_lbs"})
		assert.Error(t, err)
	})

	t.Run("non-numeric value", func(t *testing.T) {
		_, err := parseMetrics([]string{"weight_lbs=heavy"})
		assert.Error(t, err)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := parseMetrics([]string{"=5"})
		assert.Error(t, err)
	})
}

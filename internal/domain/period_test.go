package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2025-01")
	require.NoError(t, err)
	assert.Equal(t, Period{Year: 2025, Month: time.January}, p)

	p, err = ParsePeriod("2025-03-17")
	require.NoError(t, err)
	assert.Equal(t, Period{Year: 2025, Month: time.March}, p)

	_, err = ParsePeriod("March")
	assert.Error(t, err)
}

func TestPeriodArithmetic(t *testing.T) {
	dec2024 := Period{Year: 2024, Month: time.December}
	jan2025 := dec2024.AddMonths(1)

	assert.Equal(t, Period{Year: 2025, Month: time.January}, jan2025)
	assert.Equal(t, 1, MonthsBetween(dec2024, jan2025))
	assert.Equal(t, -13, MonthsBetween(jan2025, Period{Year: 2023, Month: time.December}))
	assert.True(t, dec2024.Before(jan2025))
	assert.True(t, jan2025.After(dec2024))
	assert.Equal(t, "2024-12", dec2024.String())
	assert.Equal(t, "December 2024", dec2024.Name())
	assert.Equal(t, time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC), dec2024.Start())
}

func TestPeriodJSON(t *testing.T) {
	var body struct {
		Period Period `json:"period"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"period":"2025-06"}`), &body))
	assert.Equal(t, Period{Year: 2025, Month: time.June}, body.Period)

	assert.Error(t, json.Unmarshal([]byte(`{"period":"06/2025"}`), &body))
}

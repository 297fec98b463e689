package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerAccumulatesAcrossPauses(t *testing.T) {
	t0 := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
	var timer Timer

	timer.Begin(t0)
	timer.Halt(t0.Add(time.Hour))
	assert.False(t, timer.Running)
	assert.InDelta(t, 1.0, timer.Hours, 1e-9)

	assert.True(t, timer.Resume(t0.Add(2*time.Hour)))
	timer.Stop(t0.Add(2*time.Hour + 30*time.Minute))

	assert.InDelta(t, 1.5, timer.Hours, 1e-9)
	assert.False(t, timer.Running)
	assert.Nil(t, timer.Start)
	assert.Equal(t, t0, *timer.StartedAt)
}

func TestTimerResumeNeedsPause(t *testing.T) {
	t0 := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
	var timer Timer

	assert.False(t, timer.Resume(t0))

	timer.Begin(t0)
	assert.False(t, timer.Resume(t0.Add(time.Minute)))

	timer.Stop(t0.Add(time.Minute))
	assert.False(t, timer.Resume(t0.Add(2*time.Minute)))
}

func TestSheetTimerRoundTrip(t *testing.T) {
	t0 := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
	var sheet CaptureSheet

	timer := sheet.Timer()
	timer.Begin(t0)
	sheet.SetTimer(timer)

	assert.True(t, sheet.TimerRunning)
	assert.Equal(t, t0, *sheet.CaptureStartDate)

	timer = sheet.Timer()
	timer.Stop(t0.Add(45 * time.Minute))
	sheet.SetTimer(timer)

	assert.False(t, sheet.TimerRunning)
	assert.InDelta(t, 0.75, sheet.CaptureTime, 1e-9)
}

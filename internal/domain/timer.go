package domain

import "time"

// Timer is the capture stopwatch shared by sheets and summaries. Hours accumulate across pauses.
type Timer struct {
	StartedAt *time.Time
	Start     *time.Time
	Pause     *time.Time
	Running   bool
	Hours     float64
}

func (t *Timer) Begin(now time.Time) {
	if t.Running {
		return
	}
	if t.StartedAt == nil {
		t.StartedAt = &now
	}
	t.Start = &now
	t.Pause = nil
	t.Running = true
}

func (t *Timer) Halt(now time.Time) {
	if !t.Running {
		return
	}
	if t.Start != nil && now.After(*t.Start) {
		t.Hours += now.Sub(*t.Start).Hours()
	}
	t.Pause = &now
	t.Running = false
}

// Resume only restarts a paused timer.
func (t *Timer) Resume(now time.Time) bool {
	if t.Running || t.Pause == nil {
		return false
	}
	t.Start = &now
	t.Pause = nil
	t.Running = true
	return true
}

func (t *Timer) Stop(now time.Time) {
	t.Halt(now)
	t.Start = nil
	t.Pause = nil
}

func (s *CaptureSheet) Timer() Timer {
	return Timer{StartedAt: s.CaptureStartDate, Start: s.TimerStart, Pause: s.TimerPause, Running: s.TimerRunning, Hours: s.CaptureTime}
}

func (s *CaptureSheet) SetTimer(t Timer) {
	s.CaptureStartDate, s.TimerStart, s.TimerPause, s.TimerRunning, s.CaptureTime = t.StartedAt, t.Start, t.Pause, t.Running, t.Hours
}

func (s *DistributorSummary) Timer() Timer {
	return Timer{StartedAt: s.CaptureStartDate, Start: s.TimerStart, Pause: s.TimerPause, Running: s.TimerRunning, Hours: s.CaptureTime}
}

func (s *DistributorSummary) SetTimer(t Timer) {
	s.CaptureStartDate, s.TimerStart, s.TimerPause, s.TimerRunning, s.CaptureTime = t.StartedAt, t.Start, t.Pause, t.Running, t.Hours
}

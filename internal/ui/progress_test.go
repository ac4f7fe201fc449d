package ui

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_InitialState(t *testing.T) {
	stats := NewProgressTracker().Stats()

	assert.Equal(t, StageScanning, stats.Stage)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.Progress)
	assert.Zero(t, stats.ETA)
}

func TestProgressTracker_Update(t *testing.T) {
	// Given: a tracker in the parsing stage
	p := NewProgressTracker()
	p.SetStage(StageParsing, 4)

	// When: one of four files is done
	p.Update(1, 0, "a.json")

	// Then: progress is a quarter and the total is kept
	stats := p.Stats()
	assert.Equal(t, StageParsing, stats.Stage)
	assert.InDelta(t, 0.25, stats.Progress, 1e-9)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, "a.json", stats.CurrentFile)
}

func TestProgressTracker_ProgressIsCapped(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageIndexing, 2)
	p.Update(5, 0, "")

	assert.InDelta(t, 1.0, p.Stats().Progress, 1e-9)
	assert.Zero(t, p.Stats().ETA)
}

func TestProgressTracker_SetStageResets(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageParsing, 10)
	p.Update(5, 0, "x.json")

	p.SetStage(StageIndexing, 3)

	stats := p.Stats()
	assert.Zero(t, stats.Current)
	assert.Equal(t, 3, stats.Total)
	assert.Empty(t, stats.CurrentFile)
}

func TestProgressTracker_Errors(t *testing.T) {
	p := NewProgressTracker()
	p.AddError(ErrorEvent{})
	p.AddError(ErrorEvent{IsWarn: true})
	p.AddError(ErrorEvent{IsWarn: true})

	stats := p.Stats()
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 2, stats.WarnCount)
}

func TestProgressTracker_Concurrent(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageParsing, 100)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Update(i, 0, "f.json")
			_ = p.Stats()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, p.Stats().Total)
}

// ABOUTME: Master output rendering for the transport engine
// ABOUTME: Mixes scheduled clips block by block and feeds taps and the monitor
package transport

import (
	"time"

	"github.com/beatpackz/cookmode/pkg/audio/output"
)

// Render mixes the next frames of master output. While stopped, paused or
// inside the start offset it returns silence without advancing.
func (e *Engine) Render(frames int) []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renderLocked(e.clk.Now(), frames)
}

func (e *Engine) renderLocked(now time.Time, frames int) []float32 {
	out := make([]float32, frames)
	if e.state != Playing || now.Before(e.startWall) {
		return out
	}

	loopFrames := secondsToFrames(e.loopSecondsLocked(), e.config.SampleRate)
	if loopFrames <= 0 {
		return out
	}

	players := make([]*player, 0, len(e.order))
	for _, id := range e.order {
		players = append(players, e.players[id])
	}

	cursor := e.cursor % loopFrames
	for i := range out {
		var sum float32
		for _, p := range players {
			sum += p.sampleAt(cursor)
		}
		out[i] = sum
		cursor++
		if cursor >= loopFrames {
			cursor = 0
		}
	}
	e.cursor = cursor
	return out
}

// renderTick produces one block and hands it to every tap
func (e *Engine) renderTick(now time.Time) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	block := e.renderLocked(now, e.config.BlockSize)
	taps := make([]Tap, 0, len(e.taps))
	for _, t := range e.taps {
		taps = append(taps, t)
	}
	monitorCh := e.monitorCh
	e.mu.Unlock()

	for _, t := range taps {
		t(block, e.config.SampleRate)
	}

	if monitorCh != nil {
		select {
		case monitorCh <- block:
		default:
			e.log.Debugf("Monitor output behind, dropping block")
		}
	}
}

// monitorLoop writes blocks to the monitor off the render loop, since
// device writes block
func (e *Engine) monitorLoop(out output.Output, blocks <-chan []float32, done chan<- struct{}) {
	defer close(done)
	for block := range blocks {
		if err := out.Write(block, e.config.SampleRate); err != nil {
			e.log.Warnf("Monitor write failed: %v", err)
		}
	}
}

// ABOUTME: Sequential playback queue for broadcast audio chunks
// ABOUTME: Decodes chunks FIFO and plays exactly one buffer at a time
package playback

import (
	"fmt"
	"sync"

	"github.com/beatpackz/cookmode/pkg/audio"
	"github.com/beatpackz/cookmode/pkg/audio/decode"
	"github.com/beatpackz/cookmode/pkg/protocol"
	"go.uber.org/zap"
)

// DefaultMaxQueued bounds the backlog held while locked or behind
const DefaultMaxQueued = 256

// Sink plays decoded samples. Write returns once the device has taken
// the whole buffer.
type Sink interface {
	Write(samples []float32, sampleRate int) error
	Resume() error
}

// Config holds queue configuration
type Config struct {
	Sink      Sink
	MaxQueued int
	Logger    *zap.SugaredLogger

	// NewDecoder builds a decoder per codec and sample rate, default decode.New
	NewDecoder func(audio.Format) (decode.Decoder, error)
}

// Stats counts queue activity
type Stats struct {
	Received     uint64
	Played       uint64
	Dropped      uint64
	DecodeErrors uint64
	SinkErrors   uint64
	Gaps         uint64
	Queued       int
	Unlocked     bool
}

// Queue buffers decoded chunks and feeds them to the sink one at a time.
// Nothing plays until Unlock.
type Queue struct {
	config Config
	log    *zap.SugaredLogger

	decodeMu sync.Mutex
	decoders map[audio.Format]decode.Decoder
	lastSeq  uint64

	mu       sync.Mutex
	buffers  []audio.Buffer
	unlocked bool
	playing  bool
	stats    Stats

	wake      chan struct{}
	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
}

// New creates a locked queue and starts its consumer
func New(config Config) *Queue {
	if config.MaxQueued <= 0 {
		config.MaxQueued = DefaultMaxQueued
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.NewDecoder == nil {
		config.NewDecoder = decode.New
	}

	q := &Queue{
		config:   config,
		log:      config.Logger,
		decoders: make(map[audio.Format]decode.Decoder),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go q.consume()
	return q
}

// Enqueue decodes chunk and appends it. A chunk that fails to decode is
// logged and skipped. When the backlog is full the oldest buffer is dropped.
func (q *Queue) Enqueue(chunk protocol.AudioChunk) error {
	select {
	case <-q.done:
		return fmt.Errorf("playback queue closed")
	default:
	}

	q.mu.Lock()
	q.stats.Received++
	q.mu.Unlock()

	q.trackSeq(chunk.Seq)

	samples, err := q.decode(chunk)
	if err != nil {
		q.mu.Lock()
		q.stats.DecodeErrors++
		q.mu.Unlock()
		q.log.Warnf("Skipping undecodable audio chunk (seq %d): %v", chunk.Seq, err)
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	buf := audio.Buffer{
		Timestamp: chunk.Timestamp,
		Samples:   samples,
		Format: audio.Format{
			Codec:      chunk.Codec,
			SampleRate: chunk.SampleRate,
			Channels:   1,
			BitDepth:   16,
		},
	}

	q.mu.Lock()
	if len(q.buffers) >= q.config.MaxQueued {
		q.buffers[0] = audio.Buffer{}
		q.buffers = q.buffers[1:]
		q.stats.Dropped++
	}
	q.buffers = append(q.buffers, buf)
	q.mu.Unlock()

	q.signal()
	return nil
}

// trackSeq counts chunks missing between consecutive sequence numbers.
// Order is never corrected.
func (q *Queue) trackSeq(seq uint64) {
	if seq == 0 {
		return
	}

	q.decodeMu.Lock()
	last := q.lastSeq
	q.lastSeq = seq
	q.decodeMu.Unlock()

	switch {
	case last == 0:
	case seq > last+1:
		missing := seq - last - 1
		q.mu.Lock()
		q.stats.Gaps += missing
		q.mu.Unlock()
		q.log.Warnf("Audio gap: %d chunk(s) missing before seq %d", missing, seq)
	case seq <= last:
		q.log.Debugf("Audio seq went from %d to %d", last, seq)
	}
}

func (q *Queue) decode(chunk protocol.AudioChunk) ([]float32, error) {
	data, err := audio.DecodeBase64(chunk.Audio)
	if err != nil {
		return nil, err
	}

	codec := chunk.Codec
	if codec == "" {
		codec = audio.CodecPCM16
	}
	format := audio.Format{Codec: codec, SampleRate: chunk.SampleRate, Channels: 1, BitDepth: 16}

	// Decoders may be stateful (opus), so one per stream format
	q.decodeMu.Lock()
	defer q.decodeMu.Unlock()

	if q.decoders == nil {
		return nil, fmt.Errorf("playback queue closed")
	}
	dec, ok := q.decoders[format]
	if !ok {
		dec, err = q.config.NewDecoder(format)
		if err != nil {
			return nil, err
		}
		q.decoders[format] = dec
	}
	return dec.Decode(data)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// consume is the only reader of buffers, so buffers never overlap
func (q *Queue) consume() {
	defer close(q.exited)

	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}

		for {
			q.mu.Lock()
			if !q.unlocked || len(q.buffers) == 0 {
				q.mu.Unlock()
				break
			}
			buf := q.buffers[0]
			q.buffers[0] = audio.Buffer{}
			q.buffers = q.buffers[1:]
			q.playing = true
			q.mu.Unlock()

			err := q.config.Sink.Write(buf.Samples, buf.Format.SampleRate)

			q.mu.Lock()
			q.playing = false
			if err != nil {
				q.stats.SinkErrors++
			} else {
				q.stats.Played++
			}
			q.mu.Unlock()

			if err != nil {
				q.log.Warnf("Audio sink write failed: %v", err)
			}

			select {
			case <-q.done:
				return
			default:
			}
		}
	}
}

// Unlock resumes the sink and starts draining the backlog. Safe to call
// more than once.
func (q *Queue) Unlock() error {
	q.mu.Lock()
	if q.unlocked {
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	if err := q.config.Sink.Resume(); err != nil {
		return fmt.Errorf("failed to unlock audio: %w", err)
	}

	q.mu.Lock()
	q.unlocked = true
	q.mu.Unlock()

	q.log.Infof("Audio unlocked")
	q.signal()
	return nil
}

// Unlocked reports whether audio has been unlocked
func (q *Queue) Unlocked() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unlocked
}

// Playing reports whether a buffer is being written to the sink
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Stats returns a snapshot of queue counters
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	s.Queued = len(q.buffers)
	s.Unlocked = q.unlocked
	return s
}

// Close stops the consumer, discards the backlog and releases decoders.
// Safe to call more than once.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		close(q.done)
		<-q.exited

		q.mu.Lock()
		q.buffers = nil
		q.mu.Unlock()

		q.decodeMu.Lock()
		for f, dec := range q.decoders {
			if err := dec.Close(); err != nil {
				q.log.Debugf("Failed to close %s decoder: %v", f.Codec, err)
			}
		}
		q.decoders = nil
		q.decodeMu.Unlock()
	})
	return nil
}

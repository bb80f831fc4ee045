// ABOUTME: Host master-output capture and audio chunk publishing
// ABOUTME: Moves encoding and network sends off the render loop
package capture

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/beatpackz/cookmode/pkg/audio"
	"github.com/beatpackz/cookmode/pkg/audio/encode"
	"github.com/beatpackz/cookmode/pkg/protocol"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// DefaultQueueSize is how many rendered blocks may wait for the worker
const DefaultQueueSize = 32

// Publisher writes an encoded message to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) error
}

// Config holds pipeline configuration
type Config struct {
	Publisher Publisher
	Topic     string
	Encoder   encode.Encoder // default PCM16
	Clock     clock.Clock
	QueueSize int
	Logger    *zap.SugaredLogger
}

// Stats counts pipeline activity
type Stats struct {
	Sent    uint64
	Dropped uint64
	Errors  uint64
}

type block struct {
	samples    []float32
	sampleRate int
}

// Pipeline encodes tapped blocks and publishes them as audio chunks
type Pipeline struct {
	config Config
	log    *zap.SugaredLogger
	clk    clock.Clock

	blocks chan block
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	seq     uint64
	level   atomic.Int32
	sent    atomic.Uint64
	dropped atomic.Uint64
	errors  atomic.Uint64
}

// New creates a pipeline and starts its worker
func New(config Config) *Pipeline {
	if config.Encoder == nil {
		config.Encoder = encode.NewPCM16()
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		config: config,
		log:    config.Logger,
		clk:    config.Clock,
		blocks: make(chan block, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Tap copies a rendered block for the worker without blocking. When the
// worker is behind the block is dropped.
func (p *Pipeline) Tap(samples []float32, sampleRate int) {
	if p.ctx.Err() != nil {
		return
	}

	b := block{
		samples:    append([]float32(nil), samples...),
		sampleRate: sampleRate,
	}
	select {
	case p.blocks <- b:
	default:
		if p.dropped.Add(1)%100 == 1 {
			p.log.Warnf("Capture worker behind, dropped %d blocks so far", p.dropped.Load())
		}
	}
}

func (p *Pipeline) run() {
	defer close(p.done)

	for {
		select {
		case <-p.ctx.Done():
			return
		case b := <-p.blocks:
			p.process(b)
		}
	}
}

// process handles one block. Failures are logged and the next block is
// attempted.
func (p *Pipeline) process(b block) {
	p.level.Store(int32(audio.Level(b.samples)))

	data, err := p.config.Encoder.Encode(b.samples)
	if err != nil {
		p.errors.Add(1)
		p.log.Warnf("Failed to encode audio block: %v", err)
		return
	}

	p.seq++
	chunk := protocol.AudioChunk{
		Audio:      audio.EncodeBase64(data),
		Timestamp:  p.clk.Now().UnixMilli(),
		SampleRate: b.sampleRate,
		Seq:        p.seq,
	}
	if codec := p.config.Encoder.Codec(); codec != audio.CodecPCM16 {
		chunk.Codec = codec
	}

	msg, err := protocol.Encode(chunk)
	if err != nil {
		p.errors.Add(1)
		p.log.Warnf("Failed to build audio chunk: %v", err)
		return
	}

	if err := p.config.Publisher.Publish(p.ctx, p.config.Topic, msg); err != nil {
		if p.ctx.Err() != nil {
			return
		}
		p.errors.Add(1)
		p.log.Warnf("Failed to publish audio chunk %d: %v", chunk.Seq, err)
		return
	}
	p.sent.Add(1)
}

// Level returns the most recent block level, 0 to 100
func (p *Pipeline) Level() int {
	return int(p.level.Load())
}

// Stats returns pipeline counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		Sent:    p.sent.Load(),
		Dropped: p.dropped.Load(),
		Errors:  p.errors.Load(),
	}
}

// Close stops the worker and releases the encoder. Blocks still queued are
// discarded. Safe to call more than once.
func (p *Pipeline) Close() error {
	var err error
	p.once.Do(func() {
		p.cancel()
		<-p.done
		err = p.config.Encoder.Close()
	})
	return err
}

// ABOUTME: Clip source loading from files, HTTP(S) URLs and generated tones
// ABOUTME: Decodes sources to mono float32 at the engine sample rate
package transport

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/beatpackz/cookmode/pkg/audio"
	"github.com/beatpackz/cookmode/pkg/audio/decode"
	"github.com/beatpackz/cookmode/pkg/audio/resample"
	"go.uber.org/zap"
)

// Loader fetches and decodes a clip source to mono samples at sampleRate
type Loader interface {
	Load(ctx context.Context, source string, sampleRate int) ([]float32, error)
}

// LoaderFunc adapts a function to the Loader interface
type LoaderFunc func(ctx context.Context, source string, sampleRate int) ([]float32, error)

// Load calls f
func (f LoaderFunc) Load(ctx context.Context, source string, sampleRate int) ([]float32, error) {
	return f(ctx, source, sampleRate)
}

// SourceLoader loads clip sources from local paths, http(s) URLs, or
// "tone:<hz>" test tones.
type SourceLoader struct {
	Client *http.Client
	Log    *zap.SugaredLogger
}

// NewSourceLoader creates a loader using http.DefaultClient
func NewSourceLoader(logger *zap.SugaredLogger) *SourceLoader {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SourceLoader{
		Client: http.DefaultClient,
		Log:    logger,
	}
}

// Load implements Loader
func (l *SourceLoader) Load(ctx context.Context, source string, sampleRate int) ([]float32, error) {
	if strings.HasPrefix(source, "tone:") {
		return tone(source, sampleRate)
	}

	var (
		r   io.ReadCloser
		err error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		r, err = l.fetch(ctx, source)
	} else {
		r, err = os.Open(strings.TrimPrefix(source, "file://"))
		if err != nil {
			err = fmt.Errorf("failed to open clip source: %w", err)
		}
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	buf, err := decode.File(r, source)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mono := audio.Mono(buf.Samples, buf.Format.Channels)
	out := resample.Convert(mono, buf.Format.SampleRate, sampleRate, 1)

	l.Log.Infof("Loaded clip source %s (%s, %dHz, %d channels, %d frames)",
		source, buf.Format.Codec, buf.Format.SampleRate, buf.Format.Channels, len(out))

	return out, nil
}

func (l *SourceLoader) fetch(ctx context.Context, source string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid clip url: %w", err)
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch clip source: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}
	return resp.Body, nil
}

// tone renders "tone:<hz>[?seconds=<n>]" as a half-volume sine wave
func tone(source string, sampleRate int) ([]float32, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("invalid tone source: %w", err)
	}

	freq, err := strconv.ParseFloat(u.Opaque, 64)
	if err != nil || freq <= 0 {
		return nil, fmt.Errorf("invalid tone frequency in %q", source)
	}

	seconds := 2.0
	if s := u.Query().Get("seconds"); s != "" {
		seconds, err = strconv.ParseFloat(s, 64)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("invalid tone length in %q", source)
		}
	}

	out := make([]float32, int(seconds*float64(sampleRate)))
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*t))
	}
	return out, nil
}

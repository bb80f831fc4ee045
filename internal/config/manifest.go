// ABOUTME: Clip manifest loading and hot reload for the host
// ABOUTME: Watches the manifest with fsnotify and hands every valid revision to a callback
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/beatpackz/cookmode/pkg/transport"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Manifest is the host's clip set on disk
type Manifest struct {
	BPM   float64        `yaml:"bpm,omitempty"`
	Clips []ManifestClip `yaml:"clips"`
}

// ManifestClip is one clip entry
type ManifestClip struct {
	ID            string   `yaml:"id"`
	Source        string   `yaml:"source"`
	OffsetBeats   float64  `yaml:"offset_beats"`
	DurationBeats float64  `yaml:"duration_beats"`
	Gain          *float64 `yaml:"gain,omitempty"`
	Muted         bool     `yaml:"muted,omitempty"`
}

// LoadManifest reads a manifest. Relative file sources are resolved
// against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i := range m.Clips {
		c := &m.Clips[i]
		if c.ID == "" {
			return nil, fmt.Errorf("manifest clip %d has no id", i)
		}
		if isLocalRelative(c.Source) {
			c.Source = filepath.Join(dir, c.Source)
		}
	}
	return &m, nil
}

// TransportClips converts the entries for the transport. A missing gain
// means unity.
func (m *Manifest) TransportClips() []transport.Clip {
	clips := make([]transport.Clip, 0, len(m.Clips))
	for _, c := range m.Clips {
		gain := 1.0
		if c.Gain != nil {
			gain = *c.Gain
		}
		clips = append(clips, transport.Clip{
			ID:            c.ID,
			Source:        c.Source,
			OffsetBeats:   c.OffsetBeats,
			DurationBeats: c.DurationBeats,
			Gain:          gain,
			Muted:         c.Muted,
		})
	}
	return clips
}

func isLocalRelative(source string) bool {
	if source == "" || filepath.IsAbs(source) {
		return false
	}
	for _, prefix := range []string{"http://", "https://", "tone:", "file://"} {
		if len(source) >= len(prefix) && source[:len(prefix)] == prefix {
			return false
		}
	}
	return true
}

// ManifestWatcher reloads a manifest whenever it changes on disk
type ManifestWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Manifest)
	log      *zap.SugaredLogger
	closed   chan struct{}
	done     chan struct{}
	once     sync.Once
}

// WatchManifest starts watching path. The parent directory is watched so
// editors that replace the file by rename are still seen.
func WatchManifest(path string, onChange func(*Manifest), logger *zap.SugaredLogger) (*ManifestWatcher, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &ManifestWatcher{
		path:     abs,
		watcher:  watcher,
		onChange: onChange,
		log:      logger,
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

func (w *ManifestWatcher) watchLoop() {
	defer close(w.done)
	for {
		select {
		case <-w.closed:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			m, err := LoadManifest(w.path)
			if err != nil {
				// Editors often write in several steps; the next event retries
				w.log.Warnf("Manifest reload failed: %v", err)
				continue
			}
			w.log.Infof("Manifest changed, %d clips", len(m.Clips))
			w.onChange(m)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnf("Manifest watcher error: %v", err)
		}
	}
}

// Close stops watching. Safe to call more than once.
func (w *ManifestWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closed)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

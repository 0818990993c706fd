package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"github.com/oxyengine/oxygen/engine/core"
)

// EngineConfig is the TOML-backed engine configuration.
type EngineConfig struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
	Jobs        JobsConfig        `toml:"jobs"`
	Staging     StagingConfig     `toml:"staging"`
}

type ApplicationConfig struct {
	Name     string `toml:"name"`
	Width    uint32 `toml:"width"`
	Height   uint32 `toml:"height"`
	LogLevel string `toml:"log_level"`
}

type RendererConfig struct {
	Backend        string  `toml:"backend"`
	FramesInFlight uint32  `toml:"frames_in_flight"`
	FixedStepHz    float64 `toml:"fixed_step_hz"`
}

type JobsConfig struct {
	Workers     int `toml:"workers"`
	ChannelSize int `toml:"channel_size"`
}

type StagingConfig struct {
	// single, ring or double.
	Policy            string `toml:"policy"`
	PartitionCapacity uint64 `toml:"partition_capacity"`
	// Percent of the requested size added on a ring grow event.
	GrowSlackPercent uint32 `toml:"grow_slack_percent"`
}

func Default() *EngineConfig {
	return &EngineConfig{
		Application: ApplicationConfig{
			Name:     "Oxygen Application",
			Width:    1280,
			Height:   720,
			LogLevel: "debug",
		},
		Renderer: RendererConfig{
			Backend:        "headless",
			FramesInFlight: 3,
			FixedStepHz:    60,
		},
		Jobs: JobsConfig{
			Workers:     4,
			ChannelSize: 256,
		},
		Staging: StagingConfig{
			Policy:            "ring",
			PartitionCapacity: 4 << 20,
			GrowSlackPercent:  50,
		},
	}
}

// Load reads a TOML file over the defaults. A missing file yields the
// defaults without error.
func Load(path string) (*EngineConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			core.LogInfo("config %q not found, using defaults", path)
			return cfg, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("func config.Load - parsing %q: %w", path, err)
	}
	return cfg, nil
}

/**
 * Watcher reloads the config file on change and fires
 * EVENT_CODE_CONFIG_RELOADED on the bus with the new EngineConfig as
 * event data. Editors replace files on save, so Create events on the
 * watched path count as changes too.
 */
type Watcher struct {
	mu      sync.Mutex
	path    string
	events  *core.EventBus
	watcher *fsnotify.Watcher
	current *EngineConfig
	done    chan struct{}
}

func NewWatcher(path string, initial *EngineConfig, events *core.EventBus) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: the file itself may be renamed away and
	// recreated on save.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{
		path:    path,
		events:  events,
		watcher: fsw,
		current: initial,
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) Current() *EngineConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			core.LogWarn("config watcher: %s", err.Error())
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		core.LogWarn("config reload of %q failed: %s", w.path, err.Error())
		return
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	core.LogInfo("config %q reloaded", w.path)
	w.events.Fire(core.EventContext{
		Type: core.EVENT_CODE_CONFIG_RELOADED,
		Data: cfg,
	})
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

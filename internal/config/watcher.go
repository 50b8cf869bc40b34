package config

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// HotConfig wraps Config with hot-reload support. Slot-geometry fields
// (SlotDuration, OverlapDuration, GracePercent, NotifyBefore,
// RequiredSubtitlers) are frozen for the duration of an active run: a
// reload that lands while frozenCheck reports true keeps the previous
// Slot values and only applies the Server/Source changes, so a config edit
// mid-run can't shift the geometry out from under the scheduler.
type HotConfig struct {
	mu          sync.RWMutex
	cfg         *Config
	path        string
	subs        []func(*Config)
	frozenCheck func() bool
}

func NewHotConfig(path string) (*HotConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &HotConfig{cfg: cfg, path: path}, nil
}

func (hc *HotConfig) Get() *Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.cfg
}

// SetFrozenCheck registers the predicate HotConfig consults on every reload
// to decide whether Slot geometry may change. Typically the engine's
// "is a fragment run active" check.
func (hc *HotConfig) SetFrozenCheck(fn func() bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.frozenCheck = fn
}

// OnReload registers a callback fired after every reload with the config
// now in effect (Slot already held back to its pre-reload value if the run
// was frozen).
func (hc *HotConfig) OnReload(fn func(*Config)) {
	hc.subs = append(hc.subs, fn)
}

func (hc *HotConfig) reload() {
	cfg, err := Load(hc.path)
	if err != nil {
		slog.Error("config reload failed", "err", err)
		return
	}

	hc.mu.Lock()
	frozen := hc.frozenCheck != nil && hc.frozenCheck()
	if frozen {
		if cfg.Slot != hc.cfg.Slot {
			slog.Warn("config reload: slot geometry frozen during an active run, keeping previous values", "path", hc.path)
		}
		cfg.Slot = hc.cfg.Slot
	}
	hc.cfg = cfg
	hc.mu.Unlock()

	slog.Info("config reloaded", "path", hc.path, "geometryFrozen", frozen)
	for _, fn := range hc.subs {
		fn(cfg)
	}
}

// Watch starts watching the config file for changes.
func (hc *HotConfig) Watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("config watcher failed", "err", err)
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					hc.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("config watcher error", "err", err)
			}
		}
	}()

	if err := watcher.Add(hc.path); err != nil {
		slog.Error("watch config file failed", "path", hc.path, "err", err)
	}
}

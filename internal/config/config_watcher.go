package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

func (cm *ConfigManager) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("failed to create file watcher, falling back to polling")
		cm.startPollingWatcher()
		return
	}

	if err := watcher.Add(cm.configPath); err != nil {
		log.WithError(err).WithField("path", cm.configPath).Warn("failed to watch config file, falling back to polling")
		watcher.Close()
		cm.startPollingWatcher()
		return
	}

	// Also watch the directory to catch atomic writes (rename operations)
	configDir := filepath.Dir(cm.configPath)
	if err := watcher.Add(configDir); err != nil {
		log.WithError(err).WithField("dir", configDir).Warn("failed to watch config directory")
	}

	log.WithField("path", cm.configPath).Info("file watcher started using fsnotify")

	go func() {
		defer watcher.Close()

		var debounceTimer *time.Timer
		debounceDuration := 100 * time.Millisecond

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if event.Name == cm.configPath && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.AfterFunc(debounceDuration, cm.checkAndReload)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("file watcher error")

			case <-cm.stopCh:
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				return
			}
		}
	}()
}

// startPollingWatcher is a fallback when fsnotify is not available
func (cm *ConfigManager) startPollingWatcher() {
	ticker := time.NewTicker(5 * time.Second)
	log.WithField("interval", "5s").Info("file watcher started using polling")

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cm.checkAndReload()
			case <-cm.stopCh:
				return
			}
		}
	}()
}

// checkAndReload re-reads the file when its mtime moved. A file that no
// longer parses or validates is ignored and the running configuration kept.
func (cm *ConfigManager) checkAndReload() {
	if cm.configPath == "" {
		return
	}
	info, err := os.Stat(cm.configPath)
	if err != nil {
		return
	}
	cm.mu.RLock()
	lastMod := cm.lastMod
	cm.mu.RUnlock()
	if !info.ModTime().After(lastMod) {
		return
	}

	entry := log.WithField("path", cm.configPath)
	next, modTime, err := readConfigFile(cm.configPath)
	if err != nil {
		entry.WithError(err).Warn("failed to reload config")
		return
	}
	applyEnv(next)
	applyDefaults(next)
	if res := fileConfigToConfig(next).Validate(); !res.Valid {
		for _, e := range res.Errors {
			entry.WithField("field", e.Field).Warn(e.Message)
		}
		entry.Warn("reloaded config is invalid, keeping the previous one")
		cm.mu.Lock()
		cm.lastMod = modTime
		cm.mu.Unlock()
		return
	}

	prev := cm.GetConfig()
	cm.mu.Lock()
	cm.config = next
	cm.lastMod = modTime
	cm.mu.Unlock()

	changed := diffFields(prev, next)
	if len(changed) == 0 {
		return
	}
	entry.WithField("changed", changed).Info("configuration reloaded")
	cm.emitChange(prev, next)
}

// diffFields returns the yaml names of top-level fields whose values differ.
func diffFields(old, new *FileConfig) []string {
	if old == nil || new == nil {
		return nil
	}
	ov := reflect.ValueOf(*old)
	nv := reflect.ValueOf(*new)
	t := ov.Type()

	var out []string
	for i := 0; i < t.NumField(); i++ {
		if reflect.DeepEqual(ov.Field(i).Interface(), nv.Field(i).Interface()) {
			continue
		}
		out = append(out, yamlName(t.Field(i)))
	}
	return out
}

func yamlName(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	if tag == "" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	return name
}

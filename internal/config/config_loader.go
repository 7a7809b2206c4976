package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

func (cm *ConfigManager) load() error {
	fc, modTime, err := readConfigFile(cm.configPath)
	if err != nil {
		return err
	}
	cm.mu.Lock()
	cm.config = fc
	cm.lastMod = modTime
	cm.mu.Unlock()
	log.WithField("path", cm.configPath).Info("configuration loaded")
	return nil
}

// readConfigFile parses path as YAML or JSON, picking by extension and
// trying both for anything else, then fills defaults.
func readConfigFile(path string) (*FileConfig, time.Time, error) {
	if path == "" {
		return nil, time.Time{}, os.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, err
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	case ".json":
		err = json.Unmarshal(data, &fc)
	default:
		if yerr := yaml.Unmarshal(data, &fc); yerr != nil {
			fc = FileConfig{}
			if jerr := json.Unmarshal(data, &fc); jerr != nil {
				err = fmt.Errorf("not YAML (%v) nor JSON (%v)", yerr, jerr)
			}
		}
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	applyDefaults(&fc)

	var modTime time.Time
	if info, statErr := os.Stat(path); statErr == nil {
		modTime = info.ModTime()
	}
	return &fc, modTime, nil
}

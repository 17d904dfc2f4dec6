package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads the doctypes list, conflict policy, and timing parameters
// from configPath whenever it changes on disk, invoking onReload with the
// newly validated config. Credential fields are carried over from the config
// the Watcher was started with — rotating an API key or webhook secret
// requires a process restart so the change goes through the same startup
// validation as any other credential change.
type Watcher struct {
	configPath  string
	watcher     *fsnotify.Watcher
	log         *logrus.Logger
	credentials Config
}

// NewWatcher starts watching configPath for changes, preserving the
// credential fields of initial on every future reload. Returns nil, nil if
// configPath is empty (no file to watch).
func NewWatcher(configPath string, initial *Config, log *logrus.Logger) (*Watcher, error) {
	if configPath == "" {
		return nil, nil
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(configPath); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{configPath: configPath, watcher: fw, log: log}
	if initial != nil {
		w.credentials = Config{Cloud: initial.Cloud, Local: initial.Local, WebhookSecret: initial.WebhookSecret}
	}
	return w, nil
}

// Run blocks, invoking onReload after each write/create event on the
// watched file, until stop is closed.
func (w *Watcher) Run(stop <-chan struct{}, onReload func(*Config)) {
	for {
		select {
		case <-stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reloaded, err := Load(w.configPath)
			if err != nil {
				w.log.WithError(err).Warn("config: reload failed, keeping previous configuration")
				continue
			}
			reloaded.Cloud = w.credentials.Cloud
			reloaded.Local = w.credentials.Local
			reloaded.WebhookSecret = w.credentials.WebhookSecret
			w.log.Info("config: reloaded doctypes and timing parameters from disk")
			onReload(reloaded)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("config: watcher error")
		}
	}
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	if w == nil || w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}

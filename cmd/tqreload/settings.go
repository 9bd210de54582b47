package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mevdschee/tqreload/internal/config"
	"github.com/mevdschee/tqreload/pkg/scanner"
)

// configCheckInterval is how often the config file's mtime is compared.
const configCheckInterval = time.Second

// settings holds the live configuration of a running loop. Edits to the
// config file replace it; only the wrapper backoff is read again after
// start, the other keys apply on the next run.
type settings struct {
	mu    sync.RWMutex
	cfg   *config.Config
	path  string
	mtime time.Time
}

func newSettings(cfg *config.Config, path string) *settings {
	return &settings{cfg: cfg, path: path, mtime: scanner.GetFileMtime(path)}
}

// Config returns the current configuration.
func (s *settings) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Backoff returns the wrapper backoff of the current configuration.
func (s *settings) Backoff() time.Duration {
	return s.Config().GetBackoff()
}

// check reloads the config file when it is newer than the one in use. An
// edit that does not parse or validate is logged and the old
// configuration stays.
func (s *settings) check() bool {
	changed, mtime := scanner.HasFileChanged(s.path, s.mtime)
	if !changed {
		return false
	}
	s.mtime = mtime
	log.Printf("Config file changed: %s", s.path)

	next := *s.Config()
	if err := next.Reload(s.path); err != nil {
		log.Printf("Failed to reload config: %v", err)
		return false
	}
	if err := next.Validate(); err != nil {
		log.Printf("Failed to reload config: %v", err)
		return false
	}
	s.mu.Lock()
	s.cfg = &next
	s.mu.Unlock()
	log.Printf("Configuration reloaded")
	return true
}

// watch checks the config file until ctx ends.
func (s *settings) watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check()
		}
	}
}

// Package rodremote drives a Chrome instance through go-rod and exposes its
// pages as remote.Backend values for the resolution engine.
//
// A Manager owns the browser process: it launches a local headless Chrome
// or connects to a remote one, recycles it after a maximum lifetime or when
// the JS heap grows past a limit, and opens pages with stealth patches and
// resource blocking applied.
package rodremote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/pagelem/idgen"
)

// ErrClosed is returned by a Manager after Close.
var ErrClosed = errors.New("rodremote: manager is closed")

// Config configures a Manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local one.
	RemoteURL string

	// Headful shows the browser window of a local Chrome.
	Headful bool

	// Stealth applies go-rod/stealth evasions to every page.
	Stealth bool

	// Block lists resource types never fetched: images, fonts, media,
	// stylesheets or any CDP resource type.
	Block []string

	// RecycleInterval is the maximum lifetime of a Chrome process.
	// Default: 4h.
	RecycleInterval time.Duration

	// MemoryLimit in bytes of JS heap before Chrome is recycled.
	// Default: 1GB.
	MemoryLimit int64

	// NavigateTimeout bounds page loads in Open. Default: 30s.
	NavigateTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome process. It is safe for concurrent use.
type Manager struct {
	cfg     Config
	keys    idgen.Generator
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	closed  bool
}

// NewManager returns a Manager. Call Start before Open.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, keys: idgen.Prefixed("el_", idgen.UUIDv7())}
}

// Start launches or connects to Chrome and starts the recycling monitor,
// which stops with ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	b, err := m.launch()
	if err != nil {
		return err
	}
	m.browser = b
	m.startAt = time.Now()
	go m.monitor(ctx)
	return nil
}

// Browser returns the current browser, nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Recycle restarts Chrome. Backends opened before become stale.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.cfg.Logger.Info("rodremote: recycling", "uptime", time.Since(m.startAt))
	m.cleanup()
	b, err := m.launch()
	if err != nil {
		return fmt.Errorf("rodremote: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	return nil
}

// Close shuts Chrome down.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

// Open creates a page, navigates it to url and waits for the load event.
func (m *Manager) Open(ctx context.Context, url string) (*Backend, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("rodremote: open %s: no browser", url)
	}
	var (
		page *rod.Page
		err  error
	)
	if m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("rodremote: create page: %w", err)
	}
	if len(m.cfg.Block) > 0 {
		block(page, m.cfg.Block)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("rodremote: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("rodremote: wait load", "url", url, "error", err)
	}
	return newBackend(page, m.keys, m.cfg.Logger), nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger
	u := m.cfg.RemoteURL
	if u == "" {
		l := launcher.New().
			Headless(!m.cfg.Headful).
			Set("disable-blink-features", "AutomationControlled")
		var err error
		u, err = l.Launch()
		if err != nil {
			return nil, fmt.Errorf("rodremote: launch: %w", err)
		}
		m.lnch = l
		log.Info("rodremote: launched local chrome", "url", u, "headful", m.cfg.Headful)
	} else {
		log.Info("rodremote: connecting", "url", u)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("rodremote: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("rodremote: ignore cert errors", "error", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("rodremote: close browser", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

func (m *Manager) monitor(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		m.mu.RLock()
		b, startAt, closed := m.browser, m.startAt, m.closed
		m.mu.RUnlock()
		if closed || b == nil {
			return
		}

		reason := ""
		if time.Since(startAt) > m.cfg.RecycleInterval {
			reason = "interval"
		} else if used, err := heapUsed(b); err != nil {
			log.Debug("rodremote: heap check", "error", err)
		} else if used > m.cfg.MemoryLimit {
			reason = "memory"
		}
		if reason == "" {
			continue
		}
		if err := m.Recycle(); err != nil {
			log.Error("rodremote: recycle", "reason", reason, "error", err)
		}
	}
}

// heapUsed samples the JS heap of the first page.
func heapUsed(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, errors.New("no pages")
	}
	res, err := pages[0].Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}

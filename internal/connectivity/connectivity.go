// Package connectivity tracks whether the process talks to the remote store
// or works from its local replica.
package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Mode is the current connectivity mode.
type Mode string

const (
	Online  Mode = "online"
	Offline Mode = "offline"
)

// SettingKey is the local settings key the mode is persisted under.
const SettingKey = "connectivity_mode"

// ParseMode parses "online" or "offline".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Online, Offline:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown connectivity mode %q", s)
}

// Settings persists the mode locally.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Lifecycle is started when going online and stopped when going offline.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Controller owns the connectivity mode.
type Controller struct {
	settings  Settings
	lifecycle Lifecycle

	mu        sync.Mutex
	mode      Mode
	observers map[int]func(Mode)
	nextID    int
}

// New loads the persisted mode, defaulting to online. lifecycle may be nil.
func New(ctx context.Context, settings Settings, lifecycle Lifecycle) (*Controller, error) {
	mode := Online
	v, ok, err := settings.GetSetting(ctx, SettingKey)
	if err != nil {
		return nil, fmt.Errorf("loading connectivity mode: %w", err)
	}
	if ok {
		if mode, err = ParseMode(v); err != nil {
			return nil, err
		}
	}
	return &Controller{
		settings:  settings,
		lifecycle: lifecycle,
		mode:      mode,
		observers: make(map[int]func(Mode)),
	}, nil
}

// CurrentMode returns the mode.
func (c *Controller) CurrentMode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Online reports whether the current mode is online.
func (c *Controller) Online() bool {
	return c.CurrentMode() == Online
}

// Observe registers fn to be called after every mode change. The returned
// func unregisters it.
func (c *Controller) Observe(fn func(Mode)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

// SetMode switches to online or offline. The new mode is persisted and
// observers are notified even if the lifecycle hook fails; its error is
// returned so the caller can decide what to do. Switching back is always
// explicit.
func (c *Controller) SetMode(ctx context.Context, online bool) error {
	mode := Offline
	if online {
		mode = Online
	}

	c.mu.Lock()
	if c.mode == mode {
		c.mu.Unlock()
		return nil
	}
	if err := c.settings.SetSetting(ctx, SettingKey, string(mode)); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("persisting connectivity mode: %w", err)
	}
	c.mode = mode
	observers := make([]func(Mode), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	slog.Info("connectivity mode changed", "mode", mode)

	var lifecycleErr error
	if c.lifecycle != nil {
		if online {
			lifecycleErr = c.lifecycle.Start(ctx)
		} else {
			lifecycleErr = c.lifecycle.Stop(ctx)
		}
		if lifecycleErr != nil {
			slog.Error("replica lifecycle failed", "mode", mode, "error", lifecycleErr)
			lifecycleErr = fmt.Errorf("switching to %s: %w", mode, lifecycleErr)
		}
	}

	for _, fn := range observers {
		fn(mode)
	}
	return lifecycleErr
}

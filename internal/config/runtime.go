package config

import (
	"sync"
	"sync/atomic"
)

// Settings are the switches that may change while the process runs.
type Settings struct {
	AllowWebAccess bool `json:"allow_web_access"`
	CUDAEnabled    bool `json:"cuda_enabled"`
}

// SettingsUpdate changes only the fields that are set.
type SettingsUpdate struct {
	AllowWebAccess *bool `json:"allow_web_access,omitempty"`
	CUDAEnabled    *bool `json:"cuda_enabled,omitempty"`
}

// Runtime holds the live values of Settings. Reads are lock-free.
type Runtime struct {
	allowWebAccess atomic.Bool
	cudaEnabled    atomic.Bool

	mu        sync.Mutex
	listeners []func(Settings)
}

// NewRuntime starts from the values loaded into cfg.
func NewRuntime(cfg *AppConfig) *Runtime {
	r := &Runtime{}
	r.allowWebAccess.Store(cfg.Tools.AllowWebAccess)
	r.cudaEnabled.Store(cfg.Chat.CUDAEnabled)
	return r
}

func (r *Runtime) AllowWebAccess() bool { return r.allowWebAccess.Load() }

func (r *Runtime) CUDAEnabled() bool { return r.cudaEnabled.Load() }

// Settings returns the current values.
func (r *Runtime) Settings() Settings {
	return Settings{AllowWebAccess: r.AllowWebAccess(), CUDAEnabled: r.CUDAEnabled()}
}

// OnChange registers fn to be called with the new values after every Update.
func (r *Runtime) OnChange(fn func(Settings)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Update applies u and returns the resulting settings.
func (r *Runtime) Update(u SettingsUpdate) Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.AllowWebAccess != nil {
		r.allowWebAccess.Store(*u.AllowWebAccess)
	}
	if u.CUDAEnabled != nil {
		r.cudaEnabled.Store(*u.CUDAEnabled)
	}
	s := r.Settings()
	for _, fn := range r.listeners {
		fn(s)
	}
	return s
}

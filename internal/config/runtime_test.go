package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func TestRuntime_Update(t *testing.T) {
	tests := []struct {
		name   string
		update SettingsUpdate
		want   Settings
	}{
		{name: "empty update keeps values", update: SettingsUpdate{}, want: Settings{AllowWebAccess: true, CUDAEnabled: true}},
		{name: "disable web", update: SettingsUpdate{AllowWebAccess: boolPtr(false)}, want: Settings{AllowWebAccess: false, CUDAEnabled: true}},
		{name: "disable cuda", update: SettingsUpdate{CUDAEnabled: boolPtr(false)}, want: Settings{AllowWebAccess: true, CUDAEnabled: false}},
		{
			name:   "both",
			update: SettingsUpdate{AllowWebAccess: boolPtr(false), CUDAEnabled: boolPtr(false)},
			want:   Settings{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRuntime(defaultConfig())

			var notified []Settings
			r.OnChange(func(s Settings) { notified = append(notified, s) })

			got := r.Update(tt.update)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, r.Settings())
			assert.Equal(t, []Settings{tt.want}, notified)
		})
	}
}

func TestRuntime_ConcurrentReadsAndUpdates(t *testing.T) {
	r := NewRuntime(defaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Update(SettingsUpdate{AllowWebAccess: boolPtr(i%2 == 0)})
		}()
		go func() {
			defer wg.Done()
			_ = r.AllowWebAccess()
			_ = r.Settings()
		}()
	}
	wg.Wait()
	assert.True(t, r.CUDAEnabled())
}

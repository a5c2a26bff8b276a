package pulse

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedContextProviderMemoisesPerAdvertisingID(t *testing.T) {
	var collections atomic.Int32
	provider := NewCachedContextProvider(CollectorFunc(func(advertisingID string) (*Context, error) {
		collections.Add(1)
		return &Context{Device: &DeviceInfo{AdvertisingID: advertisingID}}, nil
	}))

	first, err := provider.Snapshot("ad-1")
	require.NoError(t, err)
	second, err := provider.Snapshot("ad-1")
	require.NoError(t, err)

	assert.Same(t, first, second, "same advertising id must hit the cache")
	assert.Equal(t, int32(1), collections.Load())

	// A different advertising ID is a different cache key.
	_, err = provider.Snapshot("ad-2")
	require.NoError(t, err)
	assert.Equal(t, int32(2), collections.Load())
}

func TestCachedContextProviderInvalidate(t *testing.T) {
	var collections atomic.Int32
	provider := NewCachedContextProvider(CollectorFunc(func(string) (*Context, error) {
		collections.Add(1)
		return &Context{}, nil
	}))

	_, err := provider.Snapshot("ad-1")
	require.NoError(t, err)
	provider.Invalidate()
	_, err = provider.Snapshot("ad-1")
	require.NoError(t, err)

	assert.Equal(t, int32(2), collections.Load())
}

func TestCachedContextProviderStampsLibrary(t *testing.T) {
	provider := NewCachedContextProvider(CollectorFunc(func(string) (*Context, error) {
		return &Context{Locale: "de-DE"}, nil
	}))

	ctx, err := provider.Snapshot("")
	require.NoError(t, err)
	assert.Equal(t, libraryName, ctx.Library.Name)
	assert.Equal(t, Version, ctx.Library.Version)
	assert.Equal(t, "de-DE", ctx.Locale)
}

func TestStaticContextProviderDefaults(t *testing.T) {
	provider := NewStaticContextProvider(nil)
	ctx, err := provider.Snapshot("ignored")
	require.NoError(t, err)
	require.NotNil(t, ctx)
	assert.Equal(t, libraryName, ctx.Library.Name)
}

func TestHostCollector(t *testing.T) {
	app := &AppInfo{Name: "checkout", Version: "2.1.0"}
	collector := NewHostCollector(app)

	ctx, err := collector.Collect("ad-42")
	require.NoError(t, err)

	assert.Equal(t, app, ctx.App)
	assert.Equal(t, libraryName, ctx.Library.Name)
	assert.Equal(t, Version, ctx.Library.Version)
	require.NotNil(t, ctx.Device)
	assert.Equal(t, "ad-42", ctx.Device.AdvertisingID)
}

func TestHostLocaleParsing(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"lang with encoding", map[string]string{"LANG": "en_US.UTF-8"}, "en-US"},
		{"lc_all wins", map[string]string{"LC_ALL": "de_DE.UTF-8", "LANG": "en_US.UTF-8"}, "de-DE"},
		{"posix locale skipped", map[string]string{"LANG": "C"}, ""},
		{"modifier stripped", map[string]string{"LANG": "sr_RS@latin"}, "sr-RS"},
		{"unset", map[string]string{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, hostLocale())
		})
	}
}

func TestHostTimezoneFromTZ(t *testing.T) {
	t.Setenv("TZ", "Europe/Berlin")
	assert.Equal(t, "Europe/Berlin", hostTimezone())

	t.Setenv("TZ", ":America/New_York")
	assert.Equal(t, "America/New_York", hostTimezone())
}

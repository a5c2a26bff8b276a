package pulse

import (
	"os"
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/shirou/gopsutil/v3/host"
)

// libraryName identifies this SDK in the context of every event.
const libraryName = "pulse-go"

// Context is the environmental snapshot attached to enriched events. Every
// field except Library is optional and omitted from the wire format when
// empty.
type Context struct {
	App      *AppInfo     `json:"app,omitempty"`
	Device   *DeviceInfo  `json:"device,omitempty"`
	Library  LibraryInfo  `json:"library"`
	Locale   string       `json:"locale,omitempty"`
	Network  *NetworkInfo `json:"network,omitempty"`
	OS       *OSInfo      `json:"os,omitempty"`
	Screen   *ScreenInfo  `json:"screen,omitempty"`
	Timezone string       `json:"timezone,omitempty"`
}

// AppInfo describes the host application.
type AppInfo struct {
	Name      string `json:"name,omitempty"`
	Version   string `json:"version,omitempty"`
	Build     string `json:"build,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// DeviceInfo describes the machine events originate from.
type DeviceInfo struct {
	Manufacturer  string `json:"manufacturer,omitempty"`
	Model         string `json:"model,omitempty"`
	Name          string `json:"name,omitempty"`
	Type          string `json:"type,omitempty"`
	AdvertisingID string `json:"advertisingId,omitempty"`
}

// LibraryInfo identifies the SDK producing the event.
type LibraryInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// NetworkInfo describes connectivity. Wifi is a pointer so that unknown
// serialises as null rather than false.
type NetworkInfo struct {
	Wifi *bool `json:"wifi"`
}

// OSInfo describes the operating system.
type OSInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// ScreenInfo describes the display, when one exists.
type ScreenInfo struct {
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Density float64 `json:"density"`
}

// ContextProvider supplies the context snapshot the enricher attaches to
// each event. advertisingID is the current advertising ID; providers use it
// as a cache key and to populate device info.
type ContextProvider interface {
	Snapshot(advertisingID string) (*Context, error)
}

// contextInvalidator is implemented by providers that cache snapshots. The
// client invalidates on advertising-ID changes.
type contextInvalidator interface {
	Invalidate()
}

// Collector gathers a fresh context. Collection may be slow (host lookups,
// file reads); wrap collectors in a CachedContextProvider so the cost is
// paid once per advertising ID.
type Collector interface {
	Collect(advertisingID string) (*Context, error)
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(advertisingID string) (*Context, error)

// Collect calls f.
func (f CollectorFunc) Collect(advertisingID string) (*Context, error) {
	return f(advertisingID)
}

// CachedContextProvider memoises a Collector's snapshots keyed on the
// advertising ID. Snapshots live until Invalidate is called.
type CachedContextProvider struct {
	collector Collector
	snapshots *cache.Cache
}

// NewCachedContextProvider wraps collector with a snapshot cache.
func NewCachedContextProvider(collector Collector) *CachedContextProvider {
	return &CachedContextProvider{
		collector: collector,
		snapshots: cache.New(cache.NoExpiration, 0),
	}
}

// Snapshot returns the cached context for advertisingID, collecting one on
// first access. The library stamp is enforced on collected snapshots.
func (p *CachedContextProvider) Snapshot(advertisingID string) (*Context, error) {
	if v, ok := p.snapshots.Get(advertisingID); ok {
		return v.(*Context), nil
	}

	ctx, err := p.collector.Collect(advertisingID)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = &Context{}
	}
	if ctx.Library.Name == "" {
		ctx.Library = LibraryInfo{Name: libraryName, Version: Version}
	}

	p.snapshots.Set(advertisingID, ctx, cache.NoExpiration)
	return ctx, nil
}

// Invalidate drops all cached snapshots. The next Snapshot call collects a
// fresh context.
func (p *CachedContextProvider) Invalidate() {
	p.snapshots.Flush()
}

// StaticContextProvider serves a fixed context. Useful in tests and for
// hosts that assemble context themselves.
type StaticContextProvider struct {
	ctx *Context
}

// NewStaticContextProvider creates a provider that always returns ctx.
func NewStaticContextProvider(ctx *Context) *StaticContextProvider {
	if ctx == nil {
		ctx = &Context{}
	}
	if ctx.Library.Name == "" {
		ctx.Library = LibraryInfo{Name: libraryName, Version: Version}
	}
	return &StaticContextProvider{ctx: ctx}
}

// Snapshot returns the fixed context.
func (p *StaticContextProvider) Snapshot(string) (*Context, error) {
	return p.ctx, nil
}

// HostCollector gathers context from the local machine: OS and device facts
// via gopsutil, locale and timezone from the environment. Collection is
// best-effort; fields that cannot be determined are left empty.
type HostCollector struct {
	app *AppInfo
}

// NewHostCollector creates a collector stamping app onto every snapshot.
// app may be nil.
func NewHostCollector(app *AppInfo) *HostCollector {
	return &HostCollector{app: app}
}

// Collect builds a context snapshot for the local host.
func (c *HostCollector) Collect(advertisingID string) (*Context, error) {
	ctx := &Context{
		App:      c.app,
		Library:  LibraryInfo{Name: libraryName, Version: Version},
		Locale:   hostLocale(),
		Timezone: hostTimezone(),
	}

	if info, err := host.Info(); err == nil {
		osName := info.Platform
		if osName == "" {
			osName = info.OS
		}
		ctx.OS = &OSInfo{Name: osName, Version: info.PlatformVersion}
		ctx.Device = &DeviceInfo{
			Model: info.KernelArch,
			Name:  info.Hostname,
			Type:  info.OS,
		}
	}

	if advertisingID != "" {
		if ctx.Device == nil {
			ctx.Device = &DeviceInfo{}
		}
		ctx.Device.AdvertisingID = advertisingID
	}

	return ctx, nil
}

// hostLocale derives an xx-YY locale tag from the POSIX locale environment.
func hostLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		return strings.ReplaceAll(v, "_", "-")
	}
	return ""
}

// hostTimezone resolves the IANA timezone ID, trying the TZ variable, the
// /etc/timezone file, then the /etc/localtime symlink.
func hostTimezone() string {
	if tz := strings.TrimPrefix(os.Getenv("TZ"), ":"); tz != "" {
		return tz
	}
	if data, err := os.ReadFile("/etc/timezone"); err == nil {
		if tz := strings.TrimSpace(string(data)); tz != "" {
			return tz
		}
	}
	if link, err := os.Readlink("/etc/localtime"); err == nil {
		if i := strings.Index(link, "zoneinfo/"); i >= 0 {
			return link[i+len("zoneinfo/"):]
		}
	}
	return ""
}

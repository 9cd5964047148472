package fingerprint

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"stealthgate/internal/shared/logger"
)

// Profile is an internally consistent bundle of synthetic browser-environment
// attributes bound to one proxy. Timezone, languages and geolocation come
// from the same region class as the proxy's locale; the WebGL vendor and
// renderer are drawn as a pair conditioned on the platform.
type Profile struct {
	ID      string `json:"id"`
	ProxyID string `json:"proxy_id"`
	Region  string `json:"region"`

	Platform  string   `json:"platform"`
	Language  string   `json:"language"`
	Languages []string `json:"languages"`

	ScreenWidth  int     `json:"screen_width"`
	ScreenHeight int     `json:"screen_height"`
	ColorDepth   int     `json:"color_depth"`
	PixelRatio   float64 `json:"pixel_ratio"`

	WebGLVendor     string   `json:"webgl_vendor"`
	WebGLRenderer   string   `json:"webgl_renderer"`
	WebGLExtensions []string `json:"webgl_extensions"`

	WebGLNoiseSeed  float64 `json:"webgl_noise_seed"`
	CanvasNoiseSeed float64 `json:"canvas_noise_seed"`
	AudioNoiseSeed  float64 `json:"audio_noise_seed"`

	Timezone  string  `json:"timezone"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	CreatedAt time.Time `json:"created_at"`
}

// noise seeds stay within (0, maxNoise) so injected jitter is imperceptible
// but nonzero.
const maxNoise = 0.005

// Config tunes the generator.
type Config struct {
	TTL    time.Duration
	Tables *Tables
	Now    func() time.Time
}

// Generator creates profiles on demand and caches them per proxy id for the
// configured TTL, so a proxy keeps one stable fingerprint per rotation
// window and gets a fresh one afterwards.
type Generator struct {
	ttl    time.Duration
	tables *Tables
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]*cachedProfile
	sf    singleflight.Group

	rngMu sync.Mutex
	rng   *rand.Rand

	platforms []string // weight-sorted for deterministic iteration
}

type cachedProfile struct {
	profile *Profile
	expires time.Time
}

// NewGenerator creates a Generator. A nil Tables uses the compiled-in set.
func NewGenerator(cfg Config) *Generator {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	tables := cfg.Tables
	if tables == nil {
		tables = DefaultTables()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	platforms := make([]string, 0, len(tables.PlatformWeights))
	for platform := range tables.PlatformWeights {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)

	return &Generator{
		ttl:       cfg.TTL,
		tables:    tables,
		now:       now,
		cache:     make(map[string]*cachedProfile),
		rng:       rand.New(rand.NewSource(now().UnixNano())),
		platforms: platforms,
	}
}

// GetOrCreate returns the cached profile for the proxy if one is still
// within its TTL, otherwise generates a new one. Concurrent misses for the
// same proxy collapse into a single generation.
func (g *Generator) GetOrCreate(proxyID, localeHint string) (*Profile, error) {
	if proxyID == "" {
		return nil, fmt.Errorf("fingerprint: empty proxy id")
	}

	if p := g.cached(proxyID); p != nil {
		return p, nil
	}

	v, err, _ := g.sf.Do(proxyID, func() (interface{}, error) {
		if p := g.cached(proxyID); p != nil {
			return p, nil
		}
		p := g.generate(proxyID, localeHint)
		g.mu.Lock()
		g.cache[proxyID] = &cachedProfile{profile: p, expires: g.now().Add(g.ttl)}
		g.mu.Unlock()
		l := logger.WithComponent("Fingerprint")
		l.Debug().
			Str("proxy_id", proxyID).
			Str("platform", p.Platform).
			Str("timezone", p.Timezone).
			Msg("Generated new fingerprint profile.")
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Profile), nil
}

func (g *Generator) cached(proxyID string) *Profile {
	g.mu.RLock()
	c, ok := g.cache[proxyID]
	g.mu.RUnlock()
	if !ok {
		return nil
	}
	if g.now().After(c.expires) {
		g.mu.Lock()
		// Recheck: another goroutine may have refreshed the slot.
		if cur, ok := g.cache[proxyID]; ok && g.now().After(cur.expires) {
			delete(g.cache, proxyID)
		}
		g.mu.Unlock()
		return nil
	}
	return c.profile
}

func (g *Generator) generate(proxyID, localeHint string) *Profile {
	regionKey, region := g.tables.regionFor(localeHint)
	if len(region.Timezones) == 0 {
		region.Timezones = []string{"Etc/UTC"}
	}
	if len(region.Languages) == 0 {
		region.Languages = []string{"en-US", "en"}
	}

	g.rngMu.Lock()
	platform := g.pickPlatform()
	pair := g.tables.WebGL[platform][g.rng.Intn(len(g.tables.WebGL[platform]))]
	screen := g.tables.Screens[platform][g.rng.Intn(len(g.tables.Screens[platform]))]
	timezone := region.Timezones[g.rng.Intn(len(region.Timezones))]
	lat := region.LatMin + g.rng.Float64()*(region.LatMax-region.LatMin)
	lon := region.LonMin + g.rng.Float64()*(region.LonMax-region.LonMin)
	g.rngMu.Unlock()

	id := uuid.NewString()
	languages := append([]string(nil), region.Languages...)

	return &Profile{
		ID:              id,
		ProxyID:         proxyID,
		Region:          regionKey,
		Platform:        platform,
		Language:        languages[0],
		Languages:       languages,
		ScreenWidth:     screen.Width,
		ScreenHeight:    screen.Height,
		ColorDepth:      screen.ColorDepth,
		PixelRatio:      screen.PixelRatio,
		WebGLVendor:     pair.Vendor,
		WebGLRenderer:   pair.Renderer,
		WebGLExtensions: append([]string(nil), pair.Extensions...),
		WebGLNoiseSeed:  noiseSeed(id, "webgl"),
		CanvasNoiseSeed: noiseSeed(id, "canvas"),
		AudioNoiseSeed:  noiseSeed(id, "audio"),
		Timezone:        timezone,
		Latitude:        lat,
		Longitude:       lon,
		CreatedAt:       g.now(),
	}
}

// pickPlatform draws a platform from the weighted distribution. Caller holds
// rngMu.
func (g *Generator) pickPlatform() string {
	var total float64
	for _, platform := range g.platforms {
		total += g.tables.PlatformWeights[platform]
	}
	if total <= 0 || len(g.platforms) == 0 {
		return "Win32"
	}
	target := g.rng.Float64() * total
	for _, platform := range g.platforms {
		target -= g.tables.PlatformWeights[platform]
		if target <= 0 {
			return platform
		}
	}
	return g.platforms[len(g.platforms)-1]
}

// noiseSeed derives a small deterministic noise value from the profile id
// and a field label: the same profile always reports identical noise, while
// distinct profiles diverge.
func noiseSeed(profileID, field string) float64 {
	h := fnv.New64a()
	h.Write([]byte(profileID))
	h.Write([]byte{0})
	h.Write([]byte(field))
	r := rand.New(rand.NewSource(int64(h.Sum64())))
	return r.Float64() * maxNoise
}

// Evict drops the cached profile for one proxy, forcing regeneration on the
// next request. Used when the proxy is rotated out or blacklisted.
func (g *Generator) Evict(proxyID string) {
	g.mu.Lock()
	delete(g.cache, proxyID)
	g.mu.Unlock()
}

// Flush drops every cached profile. Used on configuration reload.
func (g *Generator) Flush() {
	g.mu.Lock()
	g.cache = make(map[string]*cachedProfile)
	g.mu.Unlock()
}

// Len reports the number of cached profiles, expired ones included until
// their next lookup.
func (g *Generator) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cache)
}

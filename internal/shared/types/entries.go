package types

// ProxyEntry is one proxy definition from the proxies.json data file.
// Entries are loaded at startup (or on reload) and never mutated afterwards;
// runtime health lives in the pool, not here.
type ProxyEntry struct {
	ID       string `json:"id,omitempty"` // defaults to "host:port"
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol,omitempty"` // "http" or "socks5"
	Country  string `json:"country,omitempty"`  // region hint for fingerprints
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// WebGLPair is one plausible (vendor, renderer) combination for a platform.
type WebGLPair struct {
	Vendor     string   `json:"vendor"`
	Renderer   string   `json:"renderer"`
	Extensions []string `json:"extensions,omitempty"`
}

// RegionClass groups the locale-dependent fingerprint attributes for one
// region so a profile's timezone, languages and geolocation never contradict
// the bound proxy's region.
type RegionClass struct {
	Timezones []string `json:"timezones"`
	Languages []string `json:"languages"`
	LatMin    float64  `json:"lat_min"`
	LatMax    float64  `json:"lat_max"`
	LonMin    float64  `json:"lon_min"`
	LonMax    float64  `json:"lon_max"`
}

// ScreenSpec is one plausible screen configuration for a platform.
type ScreenSpec struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	ColorDepth int     `json:"color_depth"`
	PixelRatio float64 `json:"pixel_ratio"`
}

// FingerprintTables is the fingerprint.json data file: the weighted platform
// distribution and the per-platform attribute tables profiles are drawn from.
type FingerprintTables struct {
	PlatformWeights map[string]float64      `json:"platform_weights"`
	WebGLTable      map[string][]WebGLPair  `json:"webgl_table"`
	ScreenTable     map[string][]ScreenSpec `json:"screen_table"`
	Regions         map[string]RegionClass  `json:"regions"`
}

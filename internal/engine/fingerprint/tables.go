package fingerprint

import (
	"strings"

	"stealthgate/internal/shared/logger"
	"stealthgate/internal/shared/types"
)

// Compiled-in attribute tables, used when no fingerprint.json is supplied.
// Every (platform -> webgl pair) and (platform -> screen) mapping must stay
// internally plausible: a mobile renderer never appears under a desktop
// platform and vice versa.

var defaultPlatformWeights = map[string]float64{
	"Win32":        0.55,
	"MacIntel":     0.25,
	"Linux x86_64": 0.15,
	"iPhone":       0.05,
}

var defaultWebGLTable = map[string][]types.WebGLPair{
	"Win32": {
		{
			Vendor:     "Google Inc. (NVIDIA)",
			Renderer:   "ANGLE (NVIDIA, NVIDIA GeForce RTX 3060 Direct3D11 vs_5_0 ps_5_0, D3D11)",
			Extensions: []string{"ANGLE_instanced_arrays", "EXT_texture_filter_anisotropic", "WEBGL_lose_context"},
		},
		{
			Vendor:     "Google Inc. (Intel)",
			Renderer:   "ANGLE (Intel, Intel(R) UHD Graphics 630 Direct3D11 vs_5_0 ps_5_0, D3D11)",
			Extensions: []string{"ANGLE_instanced_arrays", "EXT_color_buffer_float", "OES_texture_float_linear"},
		},
		{
			Vendor:     "Google Inc. (AMD)",
			Renderer:   "ANGLE (AMD, AMD Radeon RX 6700 XT Direct3D11 vs_5_0 ps_5_0, D3D11)",
			Extensions: []string{"ANGLE_instanced_arrays", "EXT_texture_filter_anisotropic", "OES_element_index_uint"},
		},
	},
	"MacIntel": {
		{
			Vendor:     "Apple Inc.",
			Renderer:   "Apple M1",
			Extensions: []string{"EXT_color_buffer_float", "WEBGL_compressed_texture_etc", "OES_texture_float_linear"},
		},
		{
			Vendor:     "Intel Inc.",
			Renderer:   "Intel(R) Iris(TM) Plus Graphics OpenGL Engine",
			Extensions: []string{"EXT_texture_filter_anisotropic", "WEBGL_depth_texture", "OES_standard_derivatives"},
		},
	},
	"Linux x86_64": {
		{
			Vendor:     "Mesa",
			Renderer:   "Mesa Intel(R) UHD Graphics 620 (KBL GT2)",
			Extensions: []string{"EXT_texture_filter_anisotropic", "OES_element_index_uint", "WEBGL_lose_context"},
		},
		{
			Vendor:     "X.Org",
			Renderer:   "AMD Radeon RX 580 Series (polaris10, LLVM 15.0.7, DRM 3.49)",
			Extensions: []string{"ANGLE_instanced_arrays", "EXT_color_buffer_float", "WEBGL_depth_texture"},
		},
	},
	"iPhone": {
		{
			Vendor:     "Apple Inc.",
			Renderer:   "Apple GPU",
			Extensions: []string{"EXT_color_buffer_half_float", "WEBGL_compressed_texture_etc", "OES_texture_half_float_linear"},
		},
	},
}

var defaultScreenTable = map[string][]types.ScreenSpec{
	"Win32": {
		{Width: 1920, Height: 1080, ColorDepth: 24, PixelRatio: 1},
		{Width: 1536, Height: 864, ColorDepth: 24, PixelRatio: 1.25},
		{Width: 2560, Height: 1440, ColorDepth: 24, PixelRatio: 1},
	},
	"MacIntel": {
		{Width: 1440, Height: 900, ColorDepth: 30, PixelRatio: 2},
		{Width: 1728, Height: 1117, ColorDepth: 30, PixelRatio: 2},
	},
	"Linux x86_64": {
		{Width: 1920, Height: 1080, ColorDepth: 24, PixelRatio: 1},
		{Width: 1366, Height: 768, ColorDepth: 24, PixelRatio: 1},
	},
	"iPhone": {
		{Width: 390, Height: 844, ColorDepth: 32, PixelRatio: 3},
		{Width: 430, Height: 932, ColorDepth: 32, PixelRatio: 3},
	},
}

var defaultRegions = map[string]types.RegionClass{
	"US": {
		Timezones: []string{"America/New_York", "America/Chicago", "America/Los_Angeles"},
		Languages: []string{"en-US", "en"},
		LatMin:    29.0, LatMax: 47.0, LonMin: -122.0, LonMax: -74.0,
	},
	"GB": {
		Timezones: []string{"Europe/London"},
		Languages: []string{"en-GB", "en"},
		LatMin:    50.5, LatMax: 55.5, LonMin: -4.5, LonMax: 0.5,
	},
	"DE": {
		Timezones: []string{"Europe/Berlin"},
		Languages: []string{"de-DE", "de", "en"},
		LatMin:    47.5, LatMax: 54.5, LonMin: 6.5, LonMax: 13.5,
	},
	"FR": {
		Timezones: []string{"Europe/Paris"},
		Languages: []string{"fr-FR", "fr", "en"},
		LatMin:    43.5, LatMax: 50.5, LonMin: -1.0, LonMax: 6.5,
	},
	"JP": {
		Timezones: []string{"Asia/Tokyo"},
		Languages: []string{"ja-JP", "ja", "en"},
		LatMin:    33.5, LatMax: 41.5, LonMin: 131.0, LonMax: 141.0,
	},
	"TW": {
		Timezones: []string{"Asia/Taipei"},
		Languages: []string{"zh-TW", "zh", "en"},
		LatMin:    22.0, LatMax: 25.3, LonMin: 120.0, LonMax: 122.0,
	},
	"SG": {
		Timezones: []string{"Asia/Singapore"},
		Languages: []string{"en-SG", "zh-SG", "en"},
		LatMin:    1.2, LatMax: 1.5, LonMin: 103.6, LonMax: 104.1,
	},
	"BR": {
		Timezones: []string{"America/Sao_Paulo"},
		Languages: []string{"pt-BR", "pt", "en"},
		LatMin:    -25.0, LatMax: -20.0, LonMin: -50.0, LonMax: -43.0,
	},
}

const defaultRegion = "US"

// Tables holds the resolved attribute tables a Generator draws from.
type Tables struct {
	PlatformWeights map[string]float64
	WebGL           map[string][]types.WebGLPair
	Screens         map[string][]types.ScreenSpec
	Regions         map[string]types.RegionClass
}

// DefaultTables returns the compiled-in tables.
func DefaultTables() *Tables {
	return &Tables{
		PlatformWeights: defaultPlatformWeights,
		WebGL:           defaultWebGLTable,
		Screens:         defaultScreenTable,
		Regions:         defaultRegions,
	}
}

// TablesFrom merges a loaded fingerprint.json over the defaults. Sections
// left empty in the file keep the compiled-in values; a platform present in
// the weights but absent from the attribute tables is dropped so the
// platform/WebGL pairing can never desynchronize.
func TablesFrom(ft *types.FingerprintTables) *Tables {
	t := DefaultTables()
	if ft == nil {
		return t
	}
	if len(ft.PlatformWeights) > 0 {
		t.PlatformWeights = ft.PlatformWeights
	}
	if len(ft.WebGLTable) > 0 {
		t.WebGL = ft.WebGLTable
	}
	if len(ft.ScreenTable) > 0 {
		t.Screens = ft.ScreenTable
	}
	if len(ft.Regions) > 0 {
		t.Regions = ft.Regions
	}

	weights := make(map[string]float64, len(t.PlatformWeights))
	for platform, w := range t.PlatformWeights {
		if w <= 0 {
			continue
		}
		if len(t.WebGL[platform]) == 0 || len(t.Screens[platform]) == 0 {
			continue
		}
		weights[platform] = w
	}
	if len(weights) == 0 {
		// No platform survived the pairing check; the file is unusable as a
		// whole, so profiles draw from the compiled-in tables instead.
		l := logger.WithComponent("Fingerprint")
		l.Warn().Msg("Fingerprint tables leave no usable platform, using compiled-in tables.")
		return DefaultTables()
	}
	t.PlatformWeights = weights
	return t
}

// regionFor resolves a locale hint (normally the proxy's country code) to a
// region class, falling back to the default region for unknown hints.
func (t *Tables) regionFor(hint string) (string, types.RegionClass) {
	key := strings.ToUpper(strings.TrimSpace(hint))
	if region, ok := t.Regions[key]; ok {
		return key, region
	}
	if region, ok := t.Regions[defaultRegion]; ok {
		return defaultRegion, region
	}
	return defaultRegion, defaultRegions[defaultRegion]
}

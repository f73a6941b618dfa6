// Package policy resolves a region classification into a target input mode
// according to per-region user preferences.
package policy

import (
	"imeswitchd/internal/config"
	"imeswitchd/internal/mode"
)

// Preference is a per-region mode preference.
type Preference string

const (
	// PreferLatin forces Latin in the region.
	PreferLatin Preference = "latin"
	// PreferNative forces the native-script mode in the region.
	PreferNative Preference = "native"
	// PreferAuto follows the classifier's suggested mode. Only meaningful
	// for string literals in the baseline configuration.
	PreferAuto Preference = "auto"
)

// Resolve maps a classification to a target mode under cfg.
//
// It returns mode.Undetermined to signal "no opinion": the region's
// switching is disabled, the preference is unknown, or the classification
// itself is undetermined. The gate treats no-opinion as a suppression, so
// the logical current mode is left untouched.
func Resolve(c mode.Classification, cfg *config.Config) mode.InputMode {
	if c.Kind == mode.RegionUndetermined {
		return mode.Undetermined
	}

	region := cfg.RegionPolicy(regionName(c.Kind))
	if region == nil || !region.Enabled {
		return mode.Undetermined
	}

	switch Preference(region.Mode) {
	case PreferLatin:
		return mode.Latin
	case PreferNative:
		return mode.Native
	case PreferAuto:
		return c.SuggestedMode
	default:
		return mode.Undetermined
	}
}

// regionName maps a region kind to its configuration key.
func regionName(k mode.RegionKind) string {
	switch k {
	case mode.RegionCode:
		return "code"
	case mode.RegionComment:
		return "comment"
	case mode.RegionString:
		return "string"
	case mode.RegionDoc:
		return "doc"
	default:
		return ""
	}
}

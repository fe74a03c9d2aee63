package emulation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kbukum/nitai/errors"
)

// Browser identifies a browser family.
type Browser string

const (
	Chrome    Browser = "chrome"
	Edge      Browser = "edge"
	Opera     Browser = "opera"
	Firefox   Browser = "firefox"
	Safari    Browser = "safari"
	SafariIOS Browser = "safari_ios"
	OkHTTP    Browser = "okhttp"
)

// OS identifies the operating system reported by a profile.
type OS string

const (
	Windows OS = "windows"
	MacOS   OS = "macos"
	Linux   OS = "linux"
	Android OS = "android"
	IOS     OS = "ios"
)

// Preset is one emulated browser build.
type Preset struct {
	Browser Browser
	Version string
}

// Name returns the canonical label, e.g. chrome_140 or safari_17_4_1.
func (p Preset) Name() string {
	return string(p.Browser) + "_" + strings.ReplaceAll(p.Version, ".", "_")
}

func (p Preset) String() string { return p.Name() }

// Major returns the leading version component.
func (p Preset) Major() string {
	major, _, _ := strings.Cut(p.Version, ".")
	return major
}

var catalog = buildCatalog(map[Browser][]string{
	Chrome: {
		"100", "101", "104", "105", "106", "107", "108", "109", "110", "114",
		"116", "117", "118", "119", "120", "123", "124", "126", "127", "128",
		"129", "130", "131", "132", "133", "134", "135", "136", "137", "138",
		"139", "140",
	},
	Edge:      {"101", "122", "127", "131", "134"},
	Opera:     {"116", "117", "118", "119"},
	Firefox:   {"109", "117", "128", "133", "135", "136", "139"},
	Safari:    {"15.3", "15.5", "15.6.1", "16", "16.5", "17.0", "17.2.1", "17.4.1", "17.5", "18", "18.2", "18.3", "26"},
	SafariIOS: {"16.5", "17.2", "17.4.1", "18.1.1", "26"},
	OkHTTP:    {"3.9", "3.11", "3.13", "3.14", "4.9", "4.10", "4.12", "5"},
})

// DefaultPreset is used when options name no preset.
var DefaultPreset = Preset{Browser: Chrome, Version: "140"}

func buildCatalog(versions map[Browser][]string) map[string]Preset {
	out := make(map[string]Preset)
	for browser, list := range versions {
		for _, v := range list {
			p := Preset{Browser: browser, Version: v}
			out[normalizeLabel(p.Name())] = p
		}
	}
	return out
}

// Presets returns every known preset.
func Presets() []Preset {
	out := make([]Preset, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, p)
	}
	return out
}

// ParsePreset resolves a preset label.
func ParsePreset(label string) (Preset, error) {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return Preset{}, errors.InvalidArgument("emulation", "preset cannot be empty")
	}
	if p, ok := catalog[normalizeLabel(trimmed)]; ok {
		return p, nil
	}
	return Preset{}, errors.InvalidArgument("emulation",
		fmt.Sprintf("unsupported preset %q, for example try chrome_140 or firefox_135", label))
}

var osAliases = map[string]OS{
	"mac":     MacOS,
	"osx":     MacOS,
	"macos":   MacOS,
	"win":     Windows,
	"win32":   Windows,
	"win64":   Windows,
	"windows": Windows,
	"iphone":  IOS,
	"ipad":    IOS,
	"ios":     IOS,
	"linux":   Linux,
	"android": Android,
}

// ParseOS resolves an operating system label or alias.
func ParseOS(label string) (OS, error) {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return "", errors.InvalidArgument("emulation.os", "cannot be empty")
	}
	if os, ok := osAliases[normalizeLabel(trimmed)]; ok {
		return os, nil
	}
	return "", errors.InvalidArgument("emulation.os",
		fmt.Sprintf("unsupported os %q, accepted values include windows, macos, linux, android, ios", label))
}

// normalizeLabel keeps ASCII letters and digits, lowercased.
func normalizeLabel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

package emulation

import (
	"fmt"
	"net/http"
)

// Options select a preset. The zero value selects DefaultPreset on MacOS.
type Options struct {
	Preset string `yaml:"preset" mapstructure:"preset"`
	OS     string `yaml:"os" mapstructure:"os"`
	// SkipHTTP2 drops the HTTP/2 preference of the preset.
	SkipHTTP2 bool `yaml:"skip_http2" mapstructure:"skip_http2"`
	// SkipHeaders drops the preset's default headers.
	SkipHeaders bool `yaml:"skip_headers" mapstructure:"skip_headers"`
}

// Profile is a resolved preset.
type Profile struct {
	Preset    Preset
	OS        OS
	UserAgent string
	// Headers are applied to requests that do not set them already.
	Headers http.Header
	// HTTP2 reports whether the preset negotiates HTTP/2.
	HTTP2 bool
}

// Parse resolves a bare preset label with default options.
func Parse(label string) (*Profile, error) {
	p, err := ParsePreset(label)
	if err != nil {
		return nil, err
	}
	return newProfile(p, defaultOS(p.Browser), Options{}), nil
}

// Build resolves opts into a Profile.
func Build(opts Options) (*Profile, error) {
	preset := DefaultPreset
	if opts.Preset != "" {
		p, err := ParsePreset(opts.Preset)
		if err != nil {
			return nil, err
		}
		preset = p
	}
	os := defaultOS(preset.Browser)
	if opts.OS != "" {
		parsed, err := ParseOS(opts.OS)
		if err != nil {
			return nil, err
		}
		os = parsed
	}
	return newProfile(preset, os, opts), nil
}

// Apply sets the profile's user agent and headers on h where h has no value.
// A nil profile leaves h untouched.
func (p *Profile) Apply(h http.Header) {
	if p == nil {
		return
	}
	if h.Get("User-Agent") == "" && p.UserAgent != "" {
		h.Set("User-Agent", p.UserAgent)
	}
	for k, v := range p.Headers {
		if _, ok := h[k]; !ok {
			h[k] = append([]string(nil), v...)
		}
	}
}

func newProfile(preset Preset, os OS, opts Options) *Profile {
	p := &Profile{
		Preset:    preset,
		OS:        os,
		UserAgent: userAgent(preset, os),
		Headers:   make(http.Header),
		HTTP2:     preset.Browser != OkHTTP && !opts.SkipHTTP2,
	}
	if !opts.SkipHeaders {
		p.Headers = defaultHeaders(preset, os)
	}
	return p
}

func defaultOS(b Browser) OS {
	switch b {
	case SafariIOS:
		return IOS
	case OkHTTP:
		return Android
	default:
		return MacOS
	}
}

func platformToken(os OS) string {
	switch os {
	case Windows:
		return "Windows NT 10.0; Win64; x64"
	case Linux:
		return "X11; Linux x86_64"
	case Android:
		return "Linux; Android 14; Pixel 8"
	case IOS:
		return "iPhone; CPU iPhone OS 17_4_1 like Mac OS X"
	default:
		return "Macintosh; Intel Mac OS X 10_15_7"
	}
}

func userAgent(p Preset, os OS) string {
	platform := platformToken(os)
	switch p.Browser {
	case Chrome:
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Safari/537.36", platform, p.Major())
	case Edge:
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Safari/537.36 Edg/%s.0.0.0", platform, p.Major(), p.Major())
	case Opera:
		chromium := chromiumForOpera(p.Major())
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Safari/537.36 OPR/%s.0.0.0", platform, chromium, p.Major())
	case Firefox:
		return fmt.Sprintf("Mozilla/5.0 (%s; rv:%s.0) Gecko/20100101 Firefox/%s.0", platform, p.Major(), p.Major())
	case Safari, SafariIOS:
		mobile := ""
		if os == IOS {
			mobile = " Mobile/15E148"
		}
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%s%s Safari/604.1", platform, p.Version, mobile)
	case OkHTTP:
		return "okhttp/" + p.Version
	}
	return ""
}

func chromiumForOpera(major string) string {
	switch major {
	case "116":
		return "131"
	case "117":
		return "132"
	case "118":
		return "133"
	default:
		return "134"
	}
}

func chUAPlatform(os OS) string {
	switch os {
	case Windows:
		return `"Windows"`
	case Linux:
		return `"Linux"`
	case Android:
		return `"Android"`
	case IOS:
		return `"iOS"`
	default:
		return `"macOS"`
	}
}

func defaultHeaders(p Preset, os OS) http.Header {
	h := make(http.Header)
	switch p.Browser {
	case Chrome, Edge, Opera:
		brand := "Google Chrome"
		switch p.Browser {
		case Edge:
			brand = "Microsoft Edge"
		case Opera:
			brand = "Opera"
		}
		h.Set("sec-ch-ua", fmt.Sprintf(`"%s";v="%s", "Chromium";v="%s", "Not.A/Brand";v="99"`, brand, p.Major(), p.Major()))
		h.Set("sec-ch-ua-mobile", "?0")
		if os == Android || os == IOS {
			h.Set("sec-ch-ua-mobile", "?1")
		}
		h.Set("sec-ch-ua-platform", chUAPlatform(os))
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
		h.Set("Accept-Language", "en-US,en;q=0.9")
	case Firefox:
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		h.Set("Accept-Language", "en-US,en;q=0.5")
	case Safari, SafariIOS:
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		h.Set("Accept-Language", "en-US,en;q=0.9")
	case OkHTTP:
		h.Set("Accept", "*/*")
	}
	return h
}

// Package emulation resolves browser emulation presets into request defaults.
//
// A preset names a browser build such as chrome_140 or safari_ios_17_4_1.
// Labels are matched ignoring case and punctuation, so "Chrome140",
// "chrome-140" and "CHROME_140" all select the same preset. Operating
// systems accept common aliases (mac, osx, win32, iphone, ...).
//
// A Profile carries the user agent, default header set and protocol
// preference of the selected browser. The fingerprint itself, cipher
// suites and HTTP/2 frame settings, belongs to the transport and is not
// reproduced here.
package emulation

// Package device turns a User-Agent header into a short label for audit records.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// Label summarizes ua as "Browser Version on OS", e.g. "Firefox 128.0 on Linux x86_64".
// Bots are prefixed with "bot:". An empty header yields "".
func Label(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return ""
	}
	parsed := useragent.New(ua)

	name, version := parsed.Browser()
	label := strings.TrimSpace(name + " " + version)
	if os := parsed.OS(); os != "" {
		label += " on " + os
	}
	if label == "" {
		label = "unknown"
	}
	if parsed.Bot() {
		return "bot:" + label
	}
	if parsed.Mobile() {
		label += " (mobile)"
	}
	return label
}

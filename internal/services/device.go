package services

import "strings"

// classifyClient derives a coarse device/browser/OS label from a User-Agent
// string. Display purposes only; nothing enforces or trusts the result.
// Unrecognized agents come back as "Unknown" rather than an error.
func classifyClient(userAgent string) (device, browser, os string) {
	if userAgent == "" {
		return "Unknown", "Unknown", "Unknown"
	}

	browser = classifyBrowser(userAgent)
	os = classifyOS(userAgent)
	device = classifyDevice(userAgent)
	return device, browser, os
}

func classifyBrowser(ua string) string {
	// Order matters: Chrome ships "Safari" in its UA, Edge ships both.
	switch {
	case strings.Contains(ua, "Edg/"), strings.Contains(ua, "Edge/"):
		return "Edge"
	case strings.Contains(ua, "OPR/"), strings.Contains(ua, "Opera"):
		return "Opera"
	case strings.Contains(ua, "Chrome/"), strings.Contains(ua, "CriOS/"):
		return "Chrome"
	case strings.Contains(ua, "Firefox/"), strings.Contains(ua, "FxiOS/"):
		return "Firefox"
	case strings.Contains(ua, "Safari/"):
		return "Safari"
	case strings.Contains(ua, "MSIE"), strings.Contains(ua, "Trident/"):
		return "Internet Explorer"
	default:
		return "Unknown"
	}
}

func classifyOS(ua string) string {
	switch {
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"), strings.Contains(ua, "iPod"):
		return "iOS"
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "Macintosh"):
		return "macOS"
	case strings.Contains(ua, "CrOS"):
		return "ChromeOS"
	case strings.Contains(ua, "Linux"), strings.Contains(ua, "X11"):
		return "Linux"
	default:
		return "Unknown"
	}
}

func classifyDevice(ua string) string {
	switch {
	case strings.Contains(ua, "iPad"), strings.Contains(ua, "Tablet"):
		return "Tablet"
	case strings.Contains(ua, "Mobile"), strings.Contains(ua, "iPhone"), strings.Contains(ua, "Android"):
		return "Mobile"
	case strings.Contains(ua, "Windows"), strings.Contains(ua, "Macintosh"),
		strings.Contains(ua, "Linux"), strings.Contains(ua, "CrOS"):
		return "Desktop"
	default:
		return "Unknown"
	}
}

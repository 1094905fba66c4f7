// Package utils provides common utility functions.
package utils

// MaskKey masks an API key for safe logging and display (shows first 8 and
// last 4 chars). Use this to avoid printing credentials in plain text.
func MaskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) < 16 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

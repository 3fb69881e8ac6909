package cratespro

import (
	"fmt"
	"strings"
)

// ExtractNamespace derives the "owner/repo" namespace from an upstream
// repository URL or path. A trailing "/" and a ".git" suffix are stripped
// before taking the last two path segments.
func ExtractNamespace(rawURL string) (string, error) {
	s := strings.TrimSuffix(rawURL, "/")
	s = strings.TrimSuffix(s, ".git")
	segs := strings.Split(s, "/")
	// Drop empty segments left by doubled slashes.
	parts := segs[:0]
	for _, seg := range segs {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	if len(parts) < 2 {
		return "", fmt.Errorf("cratespro: cannot extract namespace from %q", rawURL)
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1], nil
}

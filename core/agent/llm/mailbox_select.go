package llm

import "strings"

// ResolveModel picks the model to use from what the server has installed:
// preferred, then configured, then the first installed model. It returns ""
// when nothing is installed.
//
// A name without a tag also matches its ":latest" variant, which is how
// Ollama lists models pulled without an explicit tag.
func ResolveModel(available []string, preferred, configured string) string {
	if len(available) == 0 {
		return ""
	}
	if m, ok := findModel(available, preferred); ok {
		return m
	}
	if m, ok := findModel(available, configured); ok {
		return m
	}
	return available[0]
}

func findModel(available []string, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for _, m := range available {
		if m == name {
			return m, true
		}
	}
	if !strings.Contains(name, ":") {
		latest := name + ":latest"
		for _, m := range available {
			if m == latest {
				return m, true
			}
		}
	}
	return "", false
}

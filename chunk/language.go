package chunk

import (
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// specialNames maps well-known extensionless filenames to languages.
var specialNames = map[string]string{
	"dockerfile": "docker",
	"makefile":   "makefile",
	"rakefile":   "ruby",
	"gemfile":    "ruby",
}

// DetectLanguage resolves a file path to a lowercase language name
// for fence labels and symbol chunk metadata. Unknown files return "".
func DetectLanguage(path string) string {
	base := strings.ToLower(path)
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if lang, ok := specialNames[base]; ok {
		return lang
	}

	lexer := lexers.Match(path)
	if lexer == nil {
		return ""
	}
	name := strings.ToLower(lexer.Config().Name)
	// Chroma names a few languages with spaces or suffixes that read
	// poorly in fence labels.
	name = strings.ReplaceAll(name, " ", "")
	return name
}

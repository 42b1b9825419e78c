package guardian

import "regexp"

// RegexStrategy applies ordered patterns whose first capture group is a symbol name.
// Matches are reported pattern by pattern, each in source order.
type RegexStrategy struct {
	ID       string
	Patterns []*regexp.Regexp
}

func (s RegexStrategy) LanguageID() string { return s.ID }

func (s RegexStrategy) Symbols(_ string, content []byte) ([]string, error) {
	names := make([]string, 0)
	for _, pattern := range s.Patterns {
		for _, m := range pattern.FindAllSubmatch(content, -1) {
			if len(m) > 1 && len(m[1]) > 0 {
				names = append(names, string(m[1]))
			}
		}
	}
	return names, nil
}

var javaScriptSymbolPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:function|const|let|var)\s+(\w+)\s*(?:=\s*(?:async\s*)?\(|=\s*(?:async\s*)?function|\()`),
	regexp.MustCompile(`(?:async\s+)?(\w+)\s*\([^)]*\)\s*\{`),
	regexp.MustCompile(`export\s+(?:default\s+)?(?:async\s+)?function\s+(\w+)`),
}

var (
	shellSymbolPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*(?:function\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*(?:\(\))?\s*\{`),
	}
	rubySymbolPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*def\s+(?:self\.)?([A-Za-z_]\w*[?!]?)`),
	}
	phpSymbolPatterns = []*regexp.Regexp{
		regexp.MustCompile(`function\s+&?\s*(\w+)\s*\(`),
	}
	kotlinSymbolPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bfun\s+(?:<[^>]*>\s*)?(?:[\w.]+\.)?(\w+)\s*\(`),
	}
	swiftSymbolPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bfunc\s+(\w+)\s*[<(]`),
	}
	javaLikeSymbolPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*(?:(?:public|private|protected|internal|static|final|abstract|synchronized|async|override|virtual|sealed|partial)\s+)+[\w<>\[\],.?]+\s+(\w+)\s*\(`),
	}
	cLikeSymbolPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^[A-Za-z_][\w \t\*&:<>,]*?[\s\*&]([A-Za-z_]\w*)\s*\([^;{)]*\)\s*(?:const\s*)?\{`),
	}
	genericSymbolPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:pub\s+)?(?:async\s+)?(?:def|func|fn|fun|function|sub|proc)\s+(\w+)`),
	}
)

var builtinRegexStrategies = []RegexStrategy{
	{ID: languageJavaScript, Patterns: javaScriptSymbolPatterns},
	{ID: languageVue, Patterns: javaScriptSymbolPatterns},
	{ID: languageSvelte, Patterns: javaScriptSymbolPatterns},
	{ID: languageShell, Patterns: shellSymbolPatterns},
	{ID: languageRuby, Patterns: rubySymbolPatterns},
	{ID: languagePHP, Patterns: phpSymbolPatterns},
	{ID: languageKotlin, Patterns: kotlinSymbolPatterns},
	{ID: languageSwift, Patterns: swiftSymbolPatterns},
	{ID: languageJava, Patterns: javaLikeSymbolPatterns},
	{ID: languageCSharp, Patterns: javaLikeSymbolPatterns},
	{ID: languageC, Patterns: cLikeSymbolPatterns},
	{ID: languageCPP, Patterns: cLikeSymbolPatterns},
}

var genericRegexStrategy = RegexStrategy{ID: "generic", Patterns: genericSymbolPatterns}

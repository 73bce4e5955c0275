package domain

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// SupportedLanguages lists the display languages in selector order.
var SupportedLanguages = []string{
	"en", "es", "fr", "de", "ja", "zh", "pt", "ru", "ko", "it", "ar",
	"hi", "nl", "pl", "tr", "vi", "th", "sv", "da", "fi", "no",
}

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
	"ar": "Arabic",
	"hi": "Hindi",
	"nl": "Dutch",
	"pl": "Polish",
	"tr": "Turkish",
	"vi": "Vietnamese",
	"th": "Thai",
	"sv": "Swedish",
	"da": "Danish",
	"fi": "Finnish",
	"no": "Norwegian",
}

// LanguageName falls back to the code itself.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

func IsSupported(code string) bool {
	_, ok := languageNames[code]
	return ok
}

// NormalizeLanguage reduces a tag such as "fr-CA", "pt_BR" or " EN " to its
// lower-case base code. Unparseable input is only trimmed and lower-cased.
func NormalizeLanguage(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "_", "-")
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	tag, err := language.Parse(s)
	if err != nil {
		if i := strings.IndexByte(s, '-'); i > 0 {
			return s[:i]
		}
		return s
	}
	base, conf := tag.Base()
	if conf != language.Exact {
		if i := strings.IndexByte(s, '-'); i > 0 {
			return s[:i]
		}
		return s
	}
	code := base.String()
	// x/text canonicalizes Norwegian to "nb"; the selector uses "no".
	if code == "nb" || code == "nn" {
		return "no"
	}
	return code
}

// PreferredLanguage returns the first entry of an environment preference
// (a single tag, a POSIX locale like "fr_FR.UTF-8", or an Accept-Language
// list) that is present in available.
func PreferredLanguage(pref string, available []string) (string, bool) {
	pref = strings.TrimSpace(pref)
	if pref == "" {
		return "", false
	}
	candidates := acceptCandidates(pref)
	for _, c := range candidates {
		for _, a := range available {
			if c == a {
				return c, true
			}
		}
	}
	return "", false
}

type weighted struct {
	lang string
	q    float64
}

// acceptCandidates splits an Accept-Language style list entry by entry, so
// one unknown tag does not discard the rest. Entries are ordered by q.
func acceptCandidates(pref string) []string {
	var ws []weighted
	for _, part := range strings.Split(pref, ",") {
		fields := strings.Split(part, ";")
		lang := NormalizeLanguage(fields[0])
		if lang == "" || lang == "*" {
			continue
		}
		q := 1.0
		for _, f := range fields[1:] {
			f = strings.TrimSpace(f)
			if v, ok := strings.CutPrefix(f, "q="); ok {
				if parsed, err := strconv.ParseFloat(v, 64); err == nil {
					q = parsed
				}
			}
		}
		if q <= 0 {
			continue
		}
		ws = append(ws, weighted{lang: lang, q: q})
	}
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].q > ws[j].q })
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.lang)
	}
	return out
}

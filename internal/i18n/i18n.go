package i18n

import "strings"

type Lang string

const (
	RU Lang = "ru"
	EN Lang = "en"
)

// Default is used when a lead has no stored or reported language.
const Default = RU

// FromLanguageCode maps a Telegram language_code to a supported Lang.
// Empty codes fall back to Default.
func FromLanguageCode(code string) Lang {
	code = strings.ToLower(strings.TrimSpace(code))
	switch {
	case code == "":
		return Default
	case strings.HasPrefix(code, "ru"), strings.HasPrefix(code, "uk"), strings.HasPrefix(code, "be"):
		return RU
	default:
		return EN
	}
}

func Parse(s string) Lang {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ru":
		return RU
	case "en":
		return EN
	default:
		return Default
	}
}

func Valid(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == string(RU) || s == string(EN)
}

// T picks the copy for lang.
func T(lang Lang, ru, en string) string {
	if lang == EN {
		return en
	}
	return ru
}

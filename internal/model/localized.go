package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

type Locale string

const (
	LocaleArabic  Locale = "ar"
	LocaleEnglish Locale = "en"
)

const DefaultLocale = LocaleEnglish

var supportedLocales = []language.Tag{language.English, language.Arabic}

var localeMatcher = language.NewMatcher(supportedLocales)

// ParseLocale maps a BCP 47 tag or Accept-Language value onto a supported locale.
func ParseLocale(value string) (Locale, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	tags, _, err := language.ParseAcceptLanguage(value)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, idx, conf := localeMatcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	if supportedLocales[idx] == language.Arabic {
		return LocaleArabic, true
	}
	return LocaleEnglish, true
}

// LocalizedText holds one string per locale.
type LocalizedText map[Locale]string

func NewLocalizedText(en, ar string) LocalizedText {
	t := LocalizedText{}
	if en != "" {
		t[LocaleEnglish] = en
	}
	if ar != "" {
		t[LocaleArabic] = ar
	}
	return t
}

// Get returns the requested locale's text, falling back to English and then to
// the first non-empty locale in lexical order.
func (t LocalizedText) Get(locale Locale) string {
	if v := t[locale]; v != "" {
		return v
	}
	if v := t[DefaultLocale]; v != "" {
		return v
	}
	keys := make([]string, 0, len(t))
	for k, v := range t {
		if v != "" {
			keys = append(keys, string(k))
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return t[Locale(keys[0])]
}

func (t LocalizedText) IsEmpty() bool {
	for _, v := range t {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Merge returns a copy of t with empty locales filled from other.
func (t LocalizedText) Merge(other LocalizedText) LocalizedText {
	out := LocalizedText{}
	for k, v := range other {
		if v != "" {
			out[k] = v
		}
	}
	for k, v := range t {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func (t LocalizedText) Value() (driver.Value, error) {
	if t == nil {
		return "{}", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	// lib/pq sends []byte as bytea, which jsonb rejects.
	return string(b), nil
}

func (t *LocalizedText) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*t = LocalizedText{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("localized text: unsupported scan type %T", src)
	}
	out := LocalizedText{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("localized text: %w", err)
	}
	*t = out
	return nil
}

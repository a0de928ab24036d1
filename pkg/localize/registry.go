package localize

import (
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/currency"
	"github.com/go-playground/locales/de_DE"
	"github.com/go-playground/locales/en_GB"
	"github.com/go-playground/locales/en_US"
	"github.com/go-playground/locales/es_ES"
	"github.com/go-playground/locales/fr_FR"
	"github.com/go-playground/locales/ja_JP"
	"github.com/go-playground/locales/pt_BR"
	"github.com/go-playground/locales/sv_SE"
)

// localeEntry pairs a translator with its home currency. FmtCurrency
// renders the ISO code, so the symbol is kept alongside it.
type localeEntry struct {
	translator locales.Translator
	native     currency.Type
	code       string
	symbol     string
}

// Registry resolves locale tags to translators and caches the number
// symbols probed from each one.
type Registry struct {
	defaultLocale string
	entries       map[string]localeEntry

	mu    sync.RWMutex
	cache map[string]numberSymbols
}

// NewRegistry creates a registry with the built-in locales. Unknown tags
// resolve to defaultLocale, and an unknown default resolves to en_US.
func NewRegistry(defaultLocale string) *Registry {
	r := &Registry{
		entries: map[string]localeEntry{
			"en_US": {en_US.New(), currency.USD, "USD", "$"},
			"en_GB": {en_GB.New(), currency.GBP, "GBP", "£"},
			"de_DE": {de_DE.New(), currency.EUR, "EUR", "€"},
			"fr_FR": {fr_FR.New(), currency.EUR, "EUR", "€"},
			"es_ES": {es_ES.New(), currency.EUR, "EUR", "€"},
			"pt_BR": {pt_BR.New(), currency.BRL, "BRL", "R$"},
			"sv_SE": {sv_SE.New(), currency.SEK, "SEK", "kr"},
			"ja_JP": {ja_JP.New(), currency.JPY, "JPY", "¥"},
		},
		cache: make(map[string]numberSymbols),
	}
	r.defaultLocale = "en_US"
	if tag := normalize(defaultLocale); r.has(tag) {
		r.defaultLocale = tag
	}
	return r
}

// Resolve maps a tag such as "de-DE" to a supported locale name, falling
// back to the default locale.
func (r *Registry) Resolve(locale string) string {
	if tag := normalize(locale); r.has(tag) {
		return tag
	}
	return r.defaultLocale
}

// Default returns the fallback locale.
func (r *Registry) Default() string {
	return r.defaultLocale
}

// Supported lists the locale names in sorted order.
func (r *Registry) Supported() []string {
	out := make([]string, 0, len(r.entries))
	for tag := range r.entries {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) translator(locale string) locales.Translator {
	return r.entries[r.Resolve(locale)].translator
}

func (r *Registry) symbols(locale string) numberSymbols {
	tag := r.Resolve(locale)

	r.mu.RLock()
	sym, ok := r.cache[tag]
	r.mu.RUnlock()
	if ok {
		return sym
	}

	e := r.entries[tag]
	sym = probeSymbols(e)

	r.mu.Lock()
	r.cache[tag] = sym
	r.mu.Unlock()
	return sym
}

func (r *Registry) has(tag string) bool {
	_, ok := r.entries[tag]
	return ok
}

func normalize(locale string) string {
	locale = strings.TrimSpace(strings.ReplaceAll(locale, "-", "_"))
	lang, region, found := strings.Cut(locale, "_")
	if !found {
		return strings.ToLower(lang)
	}
	return strings.ToLower(lang) + "_" + strings.ToUpper(region)
}

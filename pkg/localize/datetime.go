package localize

import "time"

// DateTimeFormatter renders timestamps with a locale's medium date and
// short time patterns.
type DateTimeFormatter struct {
	registry *Registry
	loc      *time.Location
}

// NewDateTimeFormatter creates a formatter that renders in loc (UTC when nil).
func NewDateTimeFormatter(registry *Registry, loc *time.Location) *DateTimeFormatter {
	if loc == nil {
		loc = time.UTC
	}
	return &DateTimeFormatter{registry: registry, loc: loc}
}

// FormatFullDateTime renders t as "<medium date> <short time>".
func (f *DateTimeFormatter) FormatFullDateTime(t time.Time, locale string) string {
	tr := f.registry.translator(locale)
	t = t.In(f.loc)
	return tr.FmtDateMedium(t) + " " + tr.FmtTimeShort(t)
}

// FormatMillis renders a Unix millisecond timestamp.
func (f *DateTimeFormatter) FormatMillis(ms int64, locale string) string {
	return f.FormatFullDateTime(time.UnixMilli(ms), locale)
}

package transport

import "log/slog"

// linkLogger tags records with the kind of glasses link they concern. It reads
// slog.Default on every call so level changes from the logging manager apply.
func linkLogger(kind string, attrs ...any) *slog.Logger {
	base := make([]any, 0, 4+len(attrs))
	base = append(base, "component", "transport", "link", kind)
	return slog.Default().With(append(base, attrs...)...)
}

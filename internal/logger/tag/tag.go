// Package tag keeps structured log attribute keys consistent across packages.
package tag

import (
	"log/slog"
	"time"
)

func Error(err error) slog.Attr {
	return slog.Any("err", err)
}

// Report is the report name, which doubles as the task ID.
func Report(name string) slog.Attr {
	return slog.String("report", name)
}

func File(path string) slog.Attr {
	return slog.String("file", path)
}

func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

func Rows(n int) slog.Attr {
	return slog.Int("rows", n)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

func Time(key string, t time.Time) slog.Attr {
	return slog.Time(key, t)
}

func Recipients(list string) slog.Attr {
	return slog.String("recipients", list)
}

func Source(kind, definition string) slog.Attr {
	return slog.Group("source", slog.String("type", kind), slog.String("definition", definition))
}

func Driver(name string) slog.Attr {
	return slog.String("driver", name)
}

func Addr(addr string) slog.Attr {
	return slog.String("addr", addr)
}

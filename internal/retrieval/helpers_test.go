package retrieval

import (
	"io"
	"log/slog"
)

func newBufferLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}

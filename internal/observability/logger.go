package observability

import (
	"github.com/rs/zerolog"

	logs "github.com/danmuck/postproc/internal/logging"
)

// InitLogger returns the process logger tagged with the worker name.
func InitLogger(app string) zerolog.Logger {
	return logs.Logger().With().Str("app", app).Logger()
}

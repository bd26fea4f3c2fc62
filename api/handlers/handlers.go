package handlers

import (
	"github.com/feichai0017/docformat/config"
	"github.com/feichai0017/docformat/internal/models"
	"github.com/feichai0017/docformat/internal/service/format"
	"github.com/feichai0017/docformat/pkg/logger"
)

type Handlers struct {
	Format    *FormatHandler
	NameList  *NameListHandler
	Assistant *AssistantHandler
	Health    *HealthHandler
}

// Options carries the request-level settings of the handlers.
type Options struct {
	Presets     config.Presets
	Defaults    models.FormatProfile
	MaxFileSize int64
	Checks      map[string]Check
}

func NewHandlers(
	formatService format.FormatService,
	chat Chatter,
	opts Options,
	log logger.Logger,
) *Handlers {
	log = log.Named("api")
	return &Handlers{
		Format:    NewFormatHandler(formatService, opts.Presets, opts.Defaults, opts.MaxFileSize, log),
		NameList:  NewNameListHandler(log),
		Assistant: NewAssistantHandler(chat, log),
		Health:    NewHealthHandler(opts.Checks),
	}
}

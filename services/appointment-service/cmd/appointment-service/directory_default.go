//go:build !protogen

package main

import (
	"log/slog"

	"github.com/clinicbook/clinicbook/libs/config"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/directory"
)

func newDirectoryProvider(_ *slog.Logger) directory.Provider {
	return directory.NewHTTPProvider(config.String("DIRECTORY_BASE_URL", "http://directory-service:8082"))
}

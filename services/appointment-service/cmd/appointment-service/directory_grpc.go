//go:build protogen

package main

import (
	"log/slog"

	"github.com/clinicbook/clinicbook/libs/config"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/directory"
)

func newDirectoryProvider(logger *slog.Logger) directory.Provider {
	if addr := config.String("DIRECTORY_GRPC_ADDR", ""); addr != "" {
		p, err := directory.NewGRPCProvider(addr)
		if err != nil {
			logger.Error("directory grpc dial failed; falling back to http", "err", err)
		} else if p != nil {
			return p
		}
	}
	return directory.NewHTTPProvider(config.String("DIRECTORY_BASE_URL", "http://directory-service:8082"))
}

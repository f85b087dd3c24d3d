// Package logging provides the process-level structured logger for the
// overlay-layer daemon (cmd/sacdmountd). Library packages (dsf, transform,
// id3overlay, vfile, mtpipeline, vfscontext, overlay) never log: they return
// errors. Only process boundaries log, following go-musicfox's utils/slogx
// wrapper around log/slog.
package logging

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Init opens (creating if needed) a log file at dir/sacdmountd.log and
// installs it as the default structured logger. If dir is empty, logs go
// to stderr instead.
func Init(dir string) (*slog.Logger, error) {
	var handler slog.Handler
	if dir == "" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{AddSource: true})
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(filepath.Join(dir, "sacdmountd.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		handler = slog.NewTextHandler(f, &slog.HandlerOptions{AddSource: true})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// Err formats an error as a slog attribute, mirroring go-musicfox's
// slogx.Error helper.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

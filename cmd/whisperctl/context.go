package main

import (
	"context"

	"whisper-desktop/internal/bootstrap"
)

type commandContext struct {
	configFlag *string
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// withApp builds the application for one command and shuts it down
// afterwards, flushing pending settings writes.
func (c *commandContext) withApp(fn func(*bootstrap.App) error, opts ...bootstrap.Option) error {
	if c.configFlag != nil {
		opts = append(opts, bootstrap.WithConfigPath(*c.configFlag))
	}
	app, err := bootstrap.New(opts...)
	if err != nil {
		return err
	}
	defer app.Shutdown(context.Background())
	return fn(app)
}

package delivery

import (
	"context"
	"log/slog"

	goOTP "github.com/MrEthical07/goOTP"
)

// LogDeliverer logs issued codes instead of sending them.
type LogDeliverer struct {
	logger *slog.Logger
}

var _ goOTP.Deliverer = (*LogDeliverer)(nil)

func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(ctx context.Context, email, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.logger.InfoContext(ctx, "verification code issued", "email", email, "code", code)
	return nil
}

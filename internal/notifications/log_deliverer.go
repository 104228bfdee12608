package notifications

import (
	"context"
	"fmt"

	"github.com/luxeledger/inventory-backend/pkg/logger"
)

// LogDeliverer writes codes to the log instead of sending them. Dev only.
type LogDeliverer struct {
	logg *logger.Logger
}

func NewLogDeliverer(logg *logger.Logger) (*LogDeliverer, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &LogDeliverer{logg: logg}, nil
}

func (d *LogDeliverer) DeliverCode(ctx context.Context, msg OTPMessage) error {
	d.logg.Warn(d.logg.WithFields(ctx, map[string]any{
		"flow_id":    msg.FlowID,
		"email":      msg.Email,
		"code":       msg.Code,
		"expires_at": msg.ExpiresAt,
	}), "otp delivery stubbed to log")
	return nil
}

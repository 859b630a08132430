package dashboard

import (
	"context"
	"log/slog"
	"time"

	"swapit-dashboard/internal/modules/dashboard/service"
	"swapit-dashboard/internal/modules/dashboard/types"
	"swapit-dashboard/internal/mqtt"
)

const insertTimeout = 10 * time.Second

// RegisterIngest stores every measurement the subscriber delivers.
func RegisterIngest(subscriber mqtt.MeasurementSubscriber, svc *service.Service, logger *slog.Logger) {
	subscriber.SetMessageHandler(func(m types.Measurement) error {
		logger.Debug("processing measurement",
			"database", m.Database,
			"table", m.Table,
			"datetime", m.Datetime,
		)

		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		defer cancel()
		if err := svc.Record(ctx, m); err != nil {
			logger.Error("failed to store measurement",
				"database", m.Database,
				"table", m.Table,
				"error", err,
			)
			return err
		}
		return nil
	})
}

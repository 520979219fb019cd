package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/portraitlab/server/internal/infra/events"
)

// registerLifecycleHandlers subscribes the handlers every deployment runs.
// Outbound notifications (email, push) hook in here.
func registerLifecycleHandlers(bus *events.Bus, logger *zap.Logger) {
	bus.Register(events.NewHandlerFunc([]string{events.TrainingFinishedType}, func(_ context.Context, e events.Event) error {
		ev, ok := e.(*events.TrainingFinishedEvent)
		if !ok {
			return nil
		}
		fields := []zap.Field{
			zap.String("user_id", ev.UserID().String()),
			zap.String("training_id", ev.TrainingID.String()),
			zap.String("status", ev.Status),
		}
		if ev.Error != "" {
			fields = append(fields, zap.String("error", ev.Error))
		}
		logger.Info("training finished", fields...)
		return nil
	}))

	bus.Register(events.NewHandlerFunc([]string{events.GenerationCreatedType}, func(_ context.Context, e events.Event) error {
		ev, ok := e.(*events.GenerationCreatedEvent)
		if !ok {
			return nil
		}
		if ev.Remaining == 0 {
			logger.Info("generation allowance used up",
				zap.String("user_id", ev.UserID().String()),
				zap.String("image_id", ev.ImageID.String()),
			)
		}
		return nil
	}))
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/manthysbr/aule-agent/internal/core/domain"
	"github.com/manthysbr/aule-agent/internal/core/ports"
)

// NewDeviceAlertFunction raises an alert on a field device.
func NewDeviceAlertFunction(alerts ports.AlertPublisher) *domain.RegisteredFunction {
	return &domain.RegisteredFunction{
		Name:        "device_alert",
		Description: "Raises an alert on a field device (scanner, display, terminal) identified by device_id.",
		Required:    []string{"device_id", "message"},
		Schema: openapi3.NewObjectSchema().
			WithProperty("device_id", describe(openapi3.NewStringSchema().WithMinLength(1), "Identifier of the target device")).
			WithProperty("message", describe(openapi3.NewStringSchema().WithMinLength(1), "Alert text shown on the device")).
			WithProperty("severity", describe(
				openapi3.NewStringSchema().WithEnum(string(domain.SeverityInfo), string(domain.SeverityWarning), string(domain.SeverityCritical)),
				"info, warning or critical (default info)")),
		Examples: []domain.FunctionExample{
			{Query: "Warn dock scanner 7 that the pallet is misrouted", ExpectedCall: map[string]interface{}{"action": "device_alert", "parameters": map[string]interface{}{"device_id": "dock-scanner-7", "message": "Pallet misrouted", "severity": "warning"}}},
		},
		WantsSession: true,
		Implementation: func(ctx context.Context, inv domain.Invocation) (interface{}, error) {
			severity, err := domain.ParseSeverity(inv.String("severity"))
			if err != nil {
				return domain.Failure(err.Error()), nil
			}

			alert := domain.DeviceAlert{
				DeviceID:  inv.String("device_id"),
				Message:   inv.String("message"),
				Severity:  severity,
				SessionID: inv.SessionID,
				RaisedAt:  time.Now().UTC(),
			}
			if err := alerts.PublishAlert(ctx, alert); err != nil {
				return nil, fmt.Errorf("publish alert to %s: %w", alert.DeviceID, err)
			}
			return map[string]interface{}{
				"device_id": alert.DeviceID,
				"severity":  alert.Severity,
				"published": true,
			}, nil
		},
	}
}

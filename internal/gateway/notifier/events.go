package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kenken64/7monthIndicator-sub000/internal/breaker"
)

// EventBridge formats breaker transitions and reconciliation mismatches
// into text alerts.
type EventBridge struct {
	sink TextNotifier
}

func NewEventBridge(sink TextNotifier) *EventBridge {
	if sink == nil {
		sink = Noop{}
	}
	return &EventBridge{sink: sink}
}

func (b *EventBridge) NotifyBreaker(ctx context.Context, ev breaker.Event) error {
	var msg string
	switch ev.State {
	case breaker.StateTriggered:
		lines := []string{
			"*CIRCUIT BREAKER TRIGGERED*",
			fmt.Sprintf("Reason: %s", ev.Reason),
			fmt.Sprintf("Time: %s", ev.Timestamp.UTC().Format(time.RFC3339)),
		}
		if len(ev.Actions) > 0 {
			lines = append(lines, fmt.Sprintf("Actions: %s", strings.Join(ev.Actions, ", ")))
		}
		msg = strings.Join(lines, "\n")
	case breaker.StateSafe:
		msg = fmt.Sprintf("*Trading resumed*\n%s", ev.Reason)
	default:
		msg = fmt.Sprintf("*Circuit breaker %s*\n%s", ev.State, ev.Reason)
	}
	return b.sink.SendText(msg)
}

func (b *EventBridge) NotifyMismatch(ctx context.Context, symbol string, localNet, externalNet decimal.Decimal) error {
	msg := strings.Join([]string{
		"*POSITION MISMATCH*",
		fmt.Sprintf("Symbol: %s", symbol),
		fmt.Sprintf("Local net: %s", localNet),
		fmt.Sprintf("Exchange net: %s", externalNet),
		"No automatic correction applied. Manual review required.",
	}, "\n")
	return b.sink.SendText(msg)
}

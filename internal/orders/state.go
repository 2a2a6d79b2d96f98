package orders

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
)

// transitions lists the legal next states for each status. Paid and later
// states cannot be cancelled; they need a refund handled outside the system.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusDraft:     {enums.OrderStatusConfirmed, enums.OrderStatusPaid, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed: {enums.OrderStatusPreparing, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:      {enums.OrderStatusPreparing},
	enums.OrderStatusPreparing: {enums.OrderStatusReady},
	enums.OrderStatusReady:     {enums.OrderStatusDelivered},
}

var transitionVerbs = map[enums.OrderStatus]string{
	enums.OrderStatusConfirmed: "confirm",
	enums.OrderStatusPaid:      "mark paid",
	enums.OrderStatusPreparing: "start preparing",
	enums.OrderStatusReady:     "mark ready",
	enums.OrderStatusDelivered: "mark delivered",
	enums.OrderStatusCancelled: "cancel",
}

// orderedStatuses fixes the order predecessors are listed in messages.
var orderedStatuses = []enums.OrderStatus{
	enums.OrderStatusDraft,
	enums.OrderStatusConfirmed,
	enums.OrderStatusPaid,
	enums.OrderStatusPreparing,
	enums.OrderStatusReady,
	enums.OrderStatusDelivered,
	enums.OrderStatusCancelled,
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Predecessors returns every status that may move to target.
func Predecessors(target enums.OrderStatus) []enums.OrderStatus {
	var out []enums.OrderStatus
	for _, status := range orderedStatuses {
		if CanTransition(status, target) {
			out = append(out, status)
		}
	}
	return out
}

// RequireTransition returns nil when current may move to target. A repeated
// cancel is reported as already processed; other illegal moves name the
// statuses the order must be in.
func RequireTransition(current, target enums.OrderStatus) error {
	if CanTransition(current, target) {
		return nil
	}
	if current == target && target == enums.OrderStatusCancelled {
		return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "order is already cancelled")
	}
	verb := transitionVerbs[target]
	if verb == "" {
		verb = "move to " + target.String()
	}
	return stateConflict(Predecessors(target), verb)
}

// RequireStatus guards a mutation that is only legal in the listed statuses.
func RequireStatus(current enums.OrderStatus, action string, allowed ...enums.OrderStatus) error {
	for _, status := range allowed {
		if current == status {
			return nil
		}
	}
	return stateConflict(allowed, action)
}

func stateConflict(required []enums.OrderStatus, action string) error {
	msg := fmt.Sprintf("order must be %s to %s", joinStatuses(required), action)
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg)
}

func joinStatuses(statuses []enums.OrderStatus) string {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, s.String())
	}
	switch len(names) {
	case 0:
		return "in another state"
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
	}
}

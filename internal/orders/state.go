package orders

import "github.com/j1myx/kiwishaproject/pkg/enums"

// allowedTransitions encodes the order lifecycle. Delivered and cancelled are
// terminal; cancellation is reachable only before shipping, since shipped
// goods cannot silently return to the stock pool.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:   {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered: {},
	enums.OrderStatusCancelled: {},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// IsCancellable reports whether an order in the given status may be cancelled.
func IsCancellable(status enums.OrderStatus) bool {
	return CanTransition(status, enums.OrderStatusCancelled)
}

// CancellableStatuses lists every status cancellation is reachable from.
func CancellableStatuses() []enums.OrderStatus {
	out := make([]enums.OrderStatus, 0, 2)
	for _, from := range []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusConfirmed,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
	} {
		if IsCancellable(from) {
			out = append(out, from)
		}
	}
	return out
}

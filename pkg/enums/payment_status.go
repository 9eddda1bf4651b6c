package enums

import (
	"fmt"
	"strings"
)

// PaymentStatus is the normalized gateway-side status of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusApproved  PaymentStatus = "approved"
	PaymentStatusRejected  PaymentStatus = "rejected"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusUnknown   PaymentStatus = "unknown"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusApproved,
	PaymentStatusRejected,
	PaymentStatusCancelled,
	PaymentStatusUnknown,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}

// NormalizePaymentStatus maps raw gateway status strings onto the local enum.
// Gateway vocab is wider than ours; anything unrecognized becomes unknown.
func NormalizePaymentStatus(raw string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved", "authorized":
		return PaymentStatusApproved
	case "rejected":
		return PaymentStatusRejected
	case "cancelled", "refunded", "charged_back":
		return PaymentStatusCancelled
	case "pending", "in_process", "in_mediation":
		return PaymentStatusPending
	default:
		return PaymentStatusUnknown
	}
}

// Package domain contains entities without transport logic, just meta-data and rules.
package domain

import (
	"strings"
)

const (
	MaxConversationKeyLen = 128
	MaxConnectionIDLen    = 128
)

// ConversationKey is the booking code shared by one driver and one passenger.
type ConversationKey string

type Role string

const (
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
	// RoleSystem only appears as a message sender.
	RoleSystem Role = "system"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleDriver, RolePassenger:
		return r, nil
	default:
		return "", InvalidArgument("role", "must be driver or passenger")
	}
}

func (r Role) Valid() bool {
	return r == RoleDriver || r == RolePassenger
}

// Other returns the counterpart role. It is only meaningful for driver and passenger.
func (r Role) Other() Role {
	if r == RoleDriver {
		return RolePassenger
	}
	return RoleDriver
}

// Title is the display form used in call log texts ("Driver", "Passenger").
func (r Role) Title() string {
	if r == "" {
		return ""
	}
	s := string(r)
	return strings.ToUpper(s[:1]) + s[1:]
}

func (k ConversationKey) Validate() error {
	if strings.TrimSpace(string(k)) == "" {
		return InvalidArgument("booking_code", "empty")
	}
	if len(k) > MaxConversationKeyLen {
		return InvalidArgument("booking_code", "too long")
	}
	return nil
}

package logger

import (
	"log/slog"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the subsystem emitting the log under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// SessionID records the session identifier under the key "session_id".
func SessionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("session_id", id)
}

// CustomerID records the customer identifier under the key "customer_id".
func CustomerID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("customer_id", id)
}

// StoreID records the store identifier under the key "store_id".
func StoreID(id string) slog.Attr {
	return slog.String("store_id", id)
}

// Fingerprint records a truncated device fingerprint under the key
// "fingerprint". Only a prefix is logged to keep full hashes out of logs.
func Fingerprint(hash string) slog.Attr {
	if len(hash) > 12 {
		hash = hash[:12]
	}
	return slog.String("fingerprint", hash)
}

// Phone records a masked phone number under the key "phone". All but the
// last four digits are redacted.
func Phone(phone string) slog.Attr {
	if len(phone) > 4 {
		masked := make([]byte, len(phone))
		for i := range masked {
			masked[i] = '*'
		}
		copy(masked[len(masked)-4:], phone[len(phone)-4:])
		phone = string(masked)
	}
	return slog.String("phone", phone)
}

package exchange

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransportErrorRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", &TransportError{Op: "get", Err: errors.New("reset")}, true},
		{"throttled", &TransportError{Op: "get", StatusCode: 429}, true},
		{"server", &TransportError{Op: "get", StatusCode: 503}, true},
		{"client", &TransportError{Op: "get", StatusCode: 422}, false},
		{"wrapped", fmt.Errorf("submit: %w", &TransportError{Op: "post", StatusCode: 500}), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	notFound := &TransportError{Op: "get order", StatusCode: 404}
	if !IsNotFound(notFound) {
		t.Error("404 should be not found")
	}
	if !IsNotFound(fmt.Errorf("get order ord-1: %w", notFound)) {
		t.Error("a wrapped 404 should be not found")
	}
	if IsNotFound(&TransportError{Op: "get order", StatusCode: 500}) || IsNotFound(errors.New("404")) {
		t.Error("only a 404 transport error is not found")
	}
}

func TestNormalizeSymbol(t *testing.T) {
	for in, want := range map[string]string{"BTC/USD": "BTCUSD", "ETH-USD": "ETHUSD", "SOLUSD": "SOLUSD"} {
		if got := NormalizeSymbol(in); got != want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

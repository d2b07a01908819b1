package enum

import (
	"fmt"
	"strings"
)

type OrderSide int

const (
	SideBuy OrderSide = iota
	SideSell
)

func (s OrderSide) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return ""
	}
}

func GetOrderSide(s string) (OrderSide, error) {
	switch strings.ToLower(s) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	default:
		return 0, fmt.Errorf("unknown order side (%s)", s)
	}
}

type OrderKind int

const (
	KindMarket OrderKind = iota
	KindLimit
	KindStop
	KindStopLimit
)

func (k OrderKind) String() string {
	switch k {
	case KindMarket:
		return "market"
	case KindLimit:
		return "limit"
	case KindStop:
		return "stop"
	case KindStopLimit:
		return "stop_limit"
	default:
		return ""
	}
}

func GetOrderKind(s string) (OrderKind, error) {
	switch strings.ToLower(s) {
	case "market":
		return KindMarket, nil
	case "limit":
		return KindLimit, nil
	case "stop":
		return KindStop, nil
	case "stop_limit":
		return KindStopLimit, nil
	default:
		return 0, fmt.Errorf("unknown order kind (%s)", s)
	}
}

type TimeInForce int

const (
	TimeInForceGTC TimeInForce = iota
	TimeInForceIOC
)

func (t TimeInForce) String() string {
	switch t {
	case TimeInForceGTC:
		return "gtc"
	case TimeInForceIOC:
		return "ioc"
	default:
		return ""
	}
}

// OrderStatus is the normalized brokerage order state. Every adapter maps its
// own vocabulary onto these six values.
type OrderStatus int

const (
	StatusNew OrderStatus = iota
	StatusPending
	StatusPartiallyFilled
	StatusFilled
	StatusCanceled
	StatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusPending:
		return "pending"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCanceled:
		return "canceled"
	case StatusRejected:
		return "rejected"
	default:
		return ""
	}
}

// IsTerminal reports whether the brokerage will never change the order again.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

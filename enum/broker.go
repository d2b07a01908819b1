package enum

import (
	"fmt"
	"strings"
)

type Broker int

const (
	BrokerPaper Broker = iota
	BrokerAlpaca
	BrokerCoinbase
)

func GetBrokerFromString(s string) (Broker, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "paper":
		return BrokerPaper, nil
	case "alpaca":
		return BrokerAlpaca, nil
	case "coinbase":
		return BrokerCoinbase, nil
	default:
		return 0, fmt.Errorf("unknown broker (%s)", s)
	}
}

func (b Broker) String() string {
	switch b {
	case BrokerPaper:
		return "paper"
	case BrokerAlpaca:
		return "alpaca"
	case BrokerCoinbase:
		return "coinbase"
	default:
		return fmt.Sprintf("Broker(%d)", int(b))
	}
}

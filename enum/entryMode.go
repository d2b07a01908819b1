package enum

import (
	"fmt"
	"strings"
)

// EntryMode selects which indicator combination marks a symbol as entry-ready.
type EntryMode int

const (
	EntryMACDCross EntryMode = iota
	EntryMultiFactor
)

func GetEntryMode(s string) (EntryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "macd_cross":
		return EntryMACDCross, nil
	case "multi_factor":
		return EntryMultiFactor, nil
	default:
		return 0, fmt.Errorf("unknown entry mode (%s)", s)
	}
}

func (m EntryMode) String() string {
	switch m {
	case EntryMACDCross:
		return "macd_cross"
	case EntryMultiFactor:
		return "multi_factor"
	default:
		return ""
	}
}

// ZScoreMode decides whether a stretched price is read as a reversion
// opportunity (buy below the mean) or as momentum (buy above it).
type ZScoreMode int

const (
	ZScoreReversion ZScoreMode = iota
	ZScoreMomentum
)

func GetZScoreMode(s string) (ZScoreMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reversion":
		return ZScoreReversion, nil
	case "momentum":
		return ZScoreMomentum, nil
	default:
		return 0, fmt.Errorf("unknown z-score mode (%s)", s)
	}
}

func (m ZScoreMode) String() string {
	switch m {
	case ZScoreReversion:
		return "reversion"
	case ZScoreMomentum:
		return "momentum"
	default:
		return ""
	}
}

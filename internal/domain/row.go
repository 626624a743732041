package domain

import (
	"encoding/json"
	"strconv"
)

// Placeholder выводится вместо значения, которое не показывается (первое событие, legacy-позиция).
const Placeholder = "-"

// Trend: направление, в котором сдвинулся демон.
type Trend int

const (
	TrendNone Trend = iota
	TrendUp
	TrendDown
)

func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "none"
	}
}

func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// DeltaKind различает варианты ячейки "Change".
type DeltaKind int

const (
	DeltaNone   DeltaKind = iota // первое событие или неизвестная позиция
	DeltaLegacy                  // пересечение границы расширенного списка, величину не показываем
	DeltaShift                   // стрелка + модуль изменения
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaLegacy:
		return "legacy"
	case DeltaShift:
		return "shift"
	default:
		return "none"
	}
}

func (k DeltaKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Delta — изменение позиции относительно предыдущей показанной строки.
// Trend заполнен и для Legacy: строка все равно окрашивается как moved-up/moved-down.
type Delta struct {
	Kind      DeltaKind `json:"kind"`
	Trend     Trend     `json:"trend"`
	Magnitude int       `json:"magnitude,omitempty"`
}

// Text возвращает текст ячейки.
func (d Delta) Text() string {
	switch d.Kind {
	case DeltaLegacy:
		return "Legacy"
	case DeltaShift:
		arrow := "↓"
		if d.Trend == TrendUp {
			arrow = "↑"
		}
		return arrow + " " + strconv.Itoa(d.Magnitude)
	default:
		return Placeholder
	}
}

// PositionKind различает варианты ячейки "New Position".
type PositionKind int

const (
	PositionUnset PositionKind = iota
	PositionRanked
	PositionLegacy
)

// Position — отображаемая позиция. В JSON: число, "-" для legacy, null если не задана.
type Position struct {
	Kind PositionKind
	Rank int
}

func RankedPosition(rank int) Position { return Position{Kind: PositionRanked, Rank: rank} }

func LegacyPosition() Position { return Position{Kind: PositionLegacy} }

func (p Position) Text() string {
	switch p.Kind {
	case PositionRanked:
		return strconv.Itoa(p.Rank)
	case PositionLegacy:
		return Placeholder
	default:
		return ""
	}
}

func (p Position) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PositionRanked:
		return json.Marshal(p.Rank)
	case PositionLegacy:
		return json.Marshal(Placeholder)
	default:
		return []byte("null"), nil
	}
}

// DisplayRow — одна строка таблицы истории позиций.
type DisplayRow struct {
	Date     string   `json:"date"`
	Reason   string   `json:"reason"`
	Position Position `json:"position"`
	Delta    Delta    `json:"delta"`
}

package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AuditEvent — одна запись журнала перемещений демона.
// Upstream отдает события в хронологическом порядке.
type AuditEvent struct {
	Time        Timestamp `json:"time"`
	NewPosition *int      `json:"new_position,omitempty"`
	Reason      Reason    `json:"reason"`
}

// ReasonKind: тег варианта причины перемещения.
type ReasonKind string

const (
	ReasonAdded           ReasonKind = "Added"
	ReasonMoved           ReasonKind = "Moved"
	ReasonOtherAddedAbove ReasonKind = "OtherAddedAbove"
	ReasonOtherMoved      ReasonKind = "OtherMoved"
	ReasonUnknown         ReasonKind = "Unknown"
)

// Reason — закрытый sum type: Added | Moved | OtherAddedAbove | OtherMoved | UnknownReason.
type Reason interface {
	Kind() ReasonKind
	isReason()
}

type Added struct{}

type Moved struct{}

// OtherAddedAbove — выше добавили другой демон, этот сдвинулся вниз.
type OtherAddedAbove struct {
	Other MinimalDemon
}

// OtherMoved — другой демон переместился через позицию этого.
type OtherMoved struct {
	Other MinimalDemon
}

// UnknownReason хранит нераспознанную причину как есть, чтобы не ронять весь журнал.
type UnknownReason struct {
	Raw json.RawMessage
}

func (Added) Kind() ReasonKind           { return ReasonAdded }
func (Moved) Kind() ReasonKind           { return ReasonMoved }
func (OtherAddedAbove) Kind() ReasonKind { return ReasonOtherAddedAbove }
func (OtherMoved) Kind() ReasonKind      { return ReasonOtherMoved }
func (UnknownReason) Kind() ReasonKind   { return ReasonUnknown }

func (Added) isReason()           {}
func (Moved) isReason()           {}
func (OtherAddedAbove) isReason() {}
func (OtherMoved) isReason()      {}
func (UnknownReason) isReason()   {}

type otherPayload struct {
	Other MinimalDemon `json:"other"`
}

// DecodeReason разбирает причину в формате upstream:
// строка "Added"/"Moved" либо объект {"OtherAddedAbove": {"other": {...}}}.
// Любая другая форма становится UnknownReason, ошибки нет.
func DecodeReason(data []byte) Reason {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return UnknownReason{}
	}

	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		switch ReasonKind(tag) {
		case ReasonAdded:
			return Added{}
		case ReasonMoved:
			return Moved{}
		}
		return UnknownReason{Raw: append(json.RawMessage(nil), data...)}
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil || len(tagged) != 1 {
		return UnknownReason{Raw: append(json.RawMessage(nil), data...)}
	}

	for key, body := range tagged {
		var p otherPayload
		// Ошибка разбора "other" не фатальна: имя станет плейсхолдером
		_ = json.Unmarshal(body, &p)

		switch ReasonKind(key) {
		case ReasonOtherAddedAbove:
			return OtherAddedAbove{Other: p.Other}
		case ReasonOtherMoved:
			return OtherMoved{Other: p.Other}
		}
	}
	return UnknownReason{Raw: append(json.RawMessage(nil), data...)}
}

// EncodeReason обратна DecodeReason (нужна для кэша и снапшотов).
func EncodeReason(r Reason) ([]byte, error) {
	switch v := r.(type) {
	case Added, Moved:
		return json.Marshal(string(v.Kind()))
	case OtherAddedAbove:
		return json.Marshal(map[ReasonKind]otherPayload{ReasonOtherAddedAbove: {Other: v.Other}})
	case OtherMoved:
		return json.Marshal(map[ReasonKind]otherPayload{ReasonOtherMoved: {Other: v.Other}})
	case UnknownReason:
		if len(v.Raw) == 0 {
			return []byte("null"), nil
		}
		return v.Raw, nil
	case nil:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("domain: unsupported reason type %T", r)
	}
}

type auditEventWire struct {
	Time        Timestamp       `json:"time"`
	NewPosition json.RawMessage `json:"new_position,omitempty"`
	Reason      json.RawMessage `json:"reason"`
}

func (e *AuditEvent) UnmarshalJSON(data []byte) error {
	var w auditEventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("domain: decode audit event: %w", err)
	}
	e.Time = w.Time
	e.NewPosition = decodePosition(w.NewPosition)
	e.Reason = DecodeReason(w.Reason)
	return nil
}

func (e AuditEvent) MarshalJSON() ([]byte, error) {
	reason, err := EncodeReason(e.Reason)
	if err != nil {
		return nil, err
	}
	w := auditEventWire{Time: e.Time, Reason: reason}
	if e.NewPosition != nil {
		w.NewPosition = json.RawMessage(strconv.Itoa(*e.NewPosition))
	}
	return json.Marshal(w)
}

// decodePosition терпим к мусору: нецелое или нечисловое значение считается отсутствующим.
func decodePosition(data json.RawMessage) *int {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return nil
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		return nil
	}
	return &v
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Timestamp — момент события. Upstream присылает naive date-time без зоны,
// поэтому парсим несколько форматов и сохраняем исходную строку.
type Timestamp struct {
	Time time.Time
	Raw  string
}

func ParseTimestamp(raw string) Timestamp {
	ts := Timestamp{Raw: raw}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			ts.Time = t
			break
		}
	}
	return ts
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t, Raw: t.Format(time.RFC3339Nano)}
}

// Date возвращает календарную дату YYYY-MM-DD без времени суток.
func (t Timestamp) Date() string {
	if !t.Time.IsZero() {
		return t.Time.Format("2006-01-02")
	}
	date, _, _ := strings.Cut(t.Raw, "T")
	return date
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		// Не строка: оставляем как есть, дата будет пустой или мусорной, но журнал не падает
		*t = Timestamp{Raw: string(data)}
		return nil
	}
	*t = ParseTimestamp(raw)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	switch {
	case t.Raw != "":
		return json.Marshal(t.Raw)
	case !t.Time.IsZero():
		return json.Marshal(t.Time.Format(time.RFC3339Nano))
	default:
		return []byte("null"), nil
	}
}

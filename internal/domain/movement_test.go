package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReason(t *testing.T) {
	name := "Bloodbath"

	tests := []struct {
		name string
		raw  string
		want Reason
	}{
		{name: "added", raw: `"Added"`, want: Added{}},
		{name: "moved", raw: `"Moved"`, want: Moved{}},
		{
			name: "other added above",
			raw:  `{"OtherAddedAbove": {"other": {"id": 3, "name": "Bloodbath", "position": 1}}}`,
			want: OtherAddedAbove{Other: MinimalDemon{ID: 3, Name: &name, Position: intPtr(1)}},
		},
		{
			name: "other moved with null name",
			raw:  `{"OtherMoved": {"other": {"id": 4, "name": null}}}`,
			want: OtherMoved{Other: MinimalDemon{ID: 4}},
		},
		{name: "null", raw: `null`, want: UnknownReason{}},
		{name: "unknown tag", raw: `"Deleted"`, want: UnknownReason{Raw: json.RawMessage(`"Deleted"`)}},
		{name: "unknown object", raw: `{"Renamed": {}}`, want: UnknownReason{Raw: json.RawMessage(`{"Renamed": {}}`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeReason([]byte(tt.raw)))
		})
	}
}

func TestAuditEvent_UnmarshalUpstreamPayload(t *testing.T) {
	payload := `[
		{"time": "2021-03-04T18:22:01.123456", "new_position": 12, "reason": "Added"},
		{"time": "2021-05-01T00:00:00", "new_position": 13, "reason": {"OtherAddedAbove": {"other": {"id": 9, "name": null}}}},
		{"time": "2022-01-02T10:00:00Z", "reason": "Moved"},
		{"time": "garbageTnope", "new_position": "x", "reason": 17}
	]`

	var events []AuditEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &events))
	require.Len(t, events, 4)

	assert.Equal(t, "2021-03-04", events[0].Time.Date())
	require.NotNil(t, events[0].NewPosition)
	assert.Equal(t, 12, *events[0].NewPosition)
	assert.Equal(t, ReasonAdded, events[0].Reason.Kind())

	assert.Equal(t, ReasonOtherAddedAbove, events[1].Reason.Kind())
	assert.Nil(t, events[1].Reason.(OtherAddedAbove).Other.Name)

	assert.Equal(t, "2022-01-02", events[2].Time.Date())
	assert.Nil(t, events[2].NewPosition)

	assert.Equal(t, "garbage", events[3].Time.Date())
	assert.Nil(t, events[3].NewPosition)
	assert.Equal(t, ReasonUnknown, events[3].Reason.Kind())
}

func TestAuditEvent_MarshalKeepsWireFormat(t *testing.T) {
	name := "Sonic Wave"
	events := []AuditEvent{
		{Time: ParseTimestamp("2020-01-01T12:00:00"), NewPosition: intPtr(5), Reason: Added{}},
		{Time: ParseTimestamp("2020-02-01T12:00:00"), NewPosition: intPtr(6), Reason: OtherMoved{Other: MinimalDemon{ID: 2, Name: &name}}},
		{Time: ParseTimestamp("2020-03-01T12:00:00"), Reason: Moved{}},
	}

	raw, err := json.Marshal(events)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"time": "2020-01-01T12:00:00", "new_position": 5, "reason": "Added"},
		{"time": "2020-02-01T12:00:00", "new_position": 6, "reason": {"OtherMoved": {"other": {"id": 2, "name": "Sonic Wave"}}}},
		{"time": "2020-03-01T12:00:00", "reason": "Moved"}
	]`, string(raw))

	var decoded []AuditEvent
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, events, decoded)
}

func TestPosition_MarshalJSON(t *testing.T) {
	raw, err := json.Marshal([]Position{RankedPosition(7), LegacyPosition(), {}})
	require.NoError(t, err)
	assert.JSONEq(t, `[7, "-", null]`, string(raw))
}

func TestDelta_Text(t *testing.T) {
	assert.Equal(t, "-", Delta{}.Text())
	assert.Equal(t, "Legacy", Delta{Kind: DeltaLegacy, Trend: TrendDown}.Text())
	assert.Equal(t, "↑ 2", Delta{Kind: DeltaShift, Trend: TrendUp, Magnitude: 2}.Text())
	assert.Equal(t, "↓ 4", Delta{Kind: DeltaShift, Trend: TrendDown, Magnitude: 4}.Text())
}

func intPtr(v int) *int { return &v }

func TestListInfo_IsLegacy(t *testing.T) {
	li := ListInfo{ListSize: DefaultListSize, ExtendedListSize: DefaultExtendedListSize}

	assert.False(t, li.IsLegacy(1))
	assert.False(t, li.IsLegacy(150))
	assert.True(t, li.IsLegacy(151))
}

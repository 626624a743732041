package history

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/demonlist-history/internal/domain"
)

func event(date string, position *int, reason domain.Reason) domain.AuditEvent {
	return domain.AuditEvent{
		Time:        domain.ParseTimestamp(date + "T12:30:00"),
		NewPosition: position,
		Reason:      reason,
	}
}

func pos(v int) *int { return &v }

func named(name string) domain.MinimalDemon {
	return domain.MinimalDemon{ID: 1, Name: &name}
}

func TestProjector_EmptyInput(t *testing.T) {
	rows := slices.Collect(NewProjector(150).Rows(nil))
	assert.Empty(t, rows)
}

func TestProjector_FirstEventHasPlaceholderDelta(t *testing.T) {
	rows := NewProjector(150).Project([]domain.AuditEvent{
		event("2021-03-04", pos(12), domain.Added{}),
	})

	require.Len(t, rows, 1)
	assert.Equal(t, "2021-03-04", rows[0].Date)
	assert.Equal(t, "Added to list", rows[0].Reason)
	assert.Equal(t, domain.DeltaNone, rows[0].Delta.Kind)
	assert.Equal(t, "-", rows[0].Delta.Text())
	assert.Equal(t, domain.RankedPosition(12), rows[0].Position)
}

func TestProjector_MovedUpWithinExtendedList(t *testing.T) {
	rows := NewProjector(150).Project([]domain.AuditEvent{
		event("2021-03-04", pos(5), domain.Added{}),
		event("2021-04-01", pos(3), domain.Moved{}),
	})

	require.Len(t, rows, 2)
	assert.Equal(t, domain.Delta{Kind: domain.DeltaShift, Trend: domain.TrendUp, Magnitude: 2}, rows[1].Delta)
	assert.Equal(t, "Moved", rows[1].Reason)
	assert.Equal(t, domain.RankedPosition(3), rows[1].Position)
}

func TestProjector_MovedDown(t *testing.T) {
	rows := NewProjector(150).Project([]domain.AuditEvent{
		event("2021-03-04", pos(5), domain.Added{}),
		event("2021-04-01", pos(9), domain.OtherAddedAbove{Other: named("Tartarus")}),
	})

	require.Len(t, rows, 2)
	assert.Equal(t, domain.Delta{Kind: domain.DeltaShift, Trend: domain.TrendDown, Magnitude: 4}, rows[1].Delta)
	assert.Equal(t, "Tartarus was added above", rows[1].Reason)
}

func TestProjector_CrossingLegacyBoundaryHidesMagnitude(t *testing.T) {
	rows := NewProjector(4).Project([]domain.AuditEvent{
		event("2021-03-04", pos(5), domain.Added{}),
		event("2021-04-01", pos(3), domain.Moved{}),
	})

	require.Len(t, rows, 2)
	assert.Equal(t, domain.LegacyPosition(), rows[0].Position)
	assert.Equal(t, domain.DeltaNone, rows[0].Delta.Kind)

	assert.Equal(t, domain.DeltaLegacy, rows[1].Delta.Kind)
	assert.Equal(t, domain.TrendUp, rows[1].Delta.Trend)
	assert.Equal(t, "Legacy", rows[1].Delta.Text())
	assert.Equal(t, domain.RankedPosition(3), rows[1].Position)
}

func TestProjector_SkipsMovementsInsideLegacyTail(t *testing.T) {
	rows := NewProjector(150).Project([]domain.AuditEvent{
		event("2021-03-04", pos(200), domain.Added{}),
		event("2021-04-01", pos(210), domain.Moved{}),
	})

	require.Len(t, rows, 1)
	assert.Equal(t, "2021-03-04", rows[0].Date)
}

func TestProjector_SkippedRowDoesNotBecomeBaseline(t *testing.T) {
	rows := NewProjector(150).Project([]domain.AuditEvent{
		event("2021-01-01", pos(100), domain.Added{}),
		event("2021-02-01", pos(160), domain.Moved{}),
		event("2021-03-01", pos(170), domain.Moved{}),
		event("2021-04-01", pos(120), domain.Moved{}),
		event("2021-05-01", pos(110), domain.Moved{}),
	})

	require.Len(t, rows, 4)
	assert.Equal(t, []string{"2021-01-01", "2021-02-01", "2021-04-01", "2021-05-01"},
		[]string{rows[0].Date, rows[1].Date, rows[2].Date, rows[3].Date})

	// 120 сравнивается с 160 (последней показанной), а не с пропущенной 170
	assert.Equal(t, domain.Delta{Kind: domain.DeltaLegacy, Trend: domain.TrendUp}, rows[2].Delta)
	assert.Equal(t, domain.Delta{Kind: domain.DeltaShift, Trend: domain.TrendUp, Magnitude: 10}, rows[3].Delta)
}

func TestProjector_OtherNames(t *testing.T) {
	long := strings.Repeat("A", 30)

	tests := []struct {
		name   string
		reason domain.Reason
		want   string
	}{
		{
			name:   "long name is truncated",
			reason: domain.OtherAddedAbove{Other: named(long)},
			want:   strings.Repeat("A", 24) + "... was added above",
		},
		{
			name:   "exactly 24 characters is kept",
			reason: domain.OtherAddedAbove{Other: named(strings.Repeat("B", 24))},
			want:   strings.Repeat("B", 24) + " was added above",
		},
		{
			name:   "missing name",
			reason: domain.OtherAddedAbove{Other: domain.MinimalDemon{ID: 7}},
			want:   "A demon was added above",
		},
		{
			name:   "unknown reason",
			reason: domain.UnknownReason{},
			want:   "-",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := NewProjector(150).Project([]domain.AuditEvent{event("2021-01-01", pos(10), tt.reason)})
			require.Len(t, rows, 1)
			assert.Equal(t, tt.want, rows[0].Reason)
		})
	}
}

func TestProjector_OtherMovedVerb(t *testing.T) {
	rows := NewProjector(150).Project([]domain.AuditEvent{
		event("2021-01-01", pos(10), domain.Added{}),
		event("2021-02-01", pos(11), domain.OtherMoved{Other: named("X")}),
		event("2021-03-01", pos(10), domain.OtherMoved{Other: named("X")}),
	})

	require.Len(t, rows, 3)
	assert.Equal(t, "X was moved up past this demon", rows[1].Reason)
	assert.Equal(t, "X was moved down past this demon", rows[2].Reason)
}

func TestProjector_MissingPositionIsTolerated(t *testing.T) {
	rows := NewProjector(150).Project([]domain.AuditEvent{
		event("2021-01-01", pos(10), domain.Added{}),
		event("2021-02-01", nil, domain.Moved{}),
		event("2021-03-01", pos(8), domain.Moved{}),
	})

	require.Len(t, rows, 3)
	assert.Equal(t, domain.Position{}, rows[1].Position)
	assert.Equal(t, domain.DeltaNone, rows[1].Delta.Kind)
	assert.Equal(t, domain.DeltaNone, rows[2].Delta.Kind)
}

func TestProjector_RowsStopsWhenConsumerBreaks(t *testing.T) {
	events := []domain.AuditEvent{
		event("2021-01-01", pos(10), domain.Added{}),
		event("2021-02-01", pos(9), domain.Moved{}),
		event("2021-03-01", pos(8), domain.Moved{}),
	}

	var dates []string
	for row := range NewProjector(150).Rows(events) {
		dates = append(dates, row.Date)
		if len(dates) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"2021-01-01", "2021-02-01"}, dates)
}

func TestProjector_LegacyAfterMissingPosition(t *testing.T) {
	rows := NewProjector(150).Project([]domain.AuditEvent{
		event("2021-01-01", pos(100), domain.Added{}),
		event("2021-02-01", nil, domain.Moved{}),
		event("2021-03-01", pos(200), domain.OtherAddedAbove{Other: named("X")}),
	})

	require.Len(t, rows, 3)
	assert.Equal(t, domain.Delta{Kind: domain.DeltaLegacy, Trend: domain.TrendNone}, rows[2].Delta)
	assert.Equal(t, "Legacy", rows[2].Delta.Text())
	assert.Equal(t, domain.LegacyPosition(), rows[2].Position)
}

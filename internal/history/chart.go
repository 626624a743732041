package history

import (
	"github.com/xela07ax/demonlist-history/internal/domain"
)

// При большем числе точек подписи сжимаются до года.
const yearOnlyThreshold = 30

// PositionChart хранит данные для графика позиции во времени.
// Labels и Data одной длины, последняя точка подписана "Now".
type PositionChart struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

// Chart строит график позиции: каждая точка стоит на времени события и
// показывает место, которое демон занимал ДО него. Первая точка (добавление)
// повторяет позицию при добавлении. События без позиции или с позицией <= 0
// в график не попадают.
// current — текущая позиция демона; nil означает "последняя известная".
func Chart(events []domain.AuditEvent, current *int) PositionChart {
	type point struct {
		ts       domain.Timestamp
		position int
	}

	points := make([]point, 0, len(events))
	for _, event := range events {
		if event.NewPosition == nil || *event.NewPosition <= 0 {
			continue
		}
		points = append(points, point{ts: event.Time, position: *event.NewPosition})
	}

	chart := PositionChart{
		Labels: make([]string, 0, len(points)+1),
		Data:   make([]int, 0, len(points)+1),
	}
	if len(points) == 0 && current == nil {
		return chart
	}

	yearOnly := len(points) > yearOnlyThreshold
	lastLabel := ""

	for i, pt := range points {
		label := chartLabel(pt.ts, yearOnly)

		switch {
		case lastLabel != "" && label == lastLabel:
			chart.Labels = append(chart.Labels, "")
		case len(chart.Labels) == 0:
			lastLabel = label
			chart.Labels = append(chart.Labels, "Added ("+label+")")
		default:
			lastLabel = label
			chart.Labels = append(chart.Labels, label)
		}

		// Позиция до события i — это позиция после события i-1
		from := pt.position
		if i > 0 {
			from = points[i-1].position
		}
		chart.Data = append(chart.Data, from)
	}

	var now int
	if current != nil {
		now = *current
	} else {
		now = points[len(points)-1].position
	}
	chart.Labels = append(chart.Labels, "Now")
	chart.Data = append(chart.Data, now)

	return chart
}

func chartLabel(ts domain.Timestamp, yearOnly bool) string {
	if ts.Time.IsZero() {
		return ts.Date()
	}
	if yearOnly {
		return ts.Time.Format("2006")
	}
	return ts.Time.Format("Jan 06")
}

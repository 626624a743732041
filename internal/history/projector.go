package history

/*
Файл projector.go восстанавливает историю позиций демона из журнала перемещений.

Правила:
- Перемещения целиком внутри legacy-хвоста (и новая, и предыдущая позиции
  больше extendedListLength) не показываются.
- Для пропущенной строки lastPosition НЕ обновляется: следующее событие
  сравнивается с последней показанной позицией.
- Если хотя бы одна из сравниваемых позиций в legacy, величина сдвига
  не выводится, только маркер "Legacy".
*/

import (
	"iter"

	"github.com/xela07ax/demonlist-history/internal/domain"
)

type Projector struct {
	list domain.ListInfo
}

func NewProjector(extendedListLength int) *Projector {
	return &Projector{list: domain.ListInfo{ExtendedListSize: extendedListLength}}
}

// Rows лениво проецирует события в строки таблицы, сохраняя порядок.
func (p *Projector) Rows(events []domain.AuditEvent) iter.Seq[domain.DisplayRow] {
	return func(yield func(domain.DisplayRow) bool) {
		// seen отличает "событий еще не было" от "предыдущая позиция неизвестна"
		var (
			last *int
			seen bool
		)

		for _, event := range events {
			if p.isLegacy(event.NewPosition) && p.isLegacy(last) {
				continue
			}

			change, known := positionChange(event.NewPosition, last)

			row := domain.DisplayRow{
				Date:     event.Time.Date(),
				Delta:    p.delta(event.NewPosition, last, seen),
				Position: p.position(event.NewPosition),
				Reason:   reasonText(event.Reason, change, known),
			}

			last = event.NewPosition
			seen = true

			if !yield(row) {
				return
			}
		}
	}
}

// Project собирает Rows в срез.
func (p *Projector) Project(events []domain.AuditEvent) []domain.DisplayRow {
	rows := make([]domain.DisplayRow, 0, len(events))
	for row := range p.Rows(events) {
		rows = append(rows, row)
	}
	return rows
}

func (p *Projector) isLegacy(position *int) bool {
	return position != nil && p.list.IsLegacy(*position)
}

func (p *Projector) delta(current, last *int, seen bool) domain.Delta {
	if !seen {
		return domain.Delta{Kind: domain.DeltaNone}
	}
	change, known := positionChange(current, last)

	trend := domain.TrendNone
	if known {
		trend = domain.TrendDown
		if change < 0 {
			trend = domain.TrendUp
		}
	}

	// Граница legacy видна и без второй позиции; величина тогда не нужна
	if p.isLegacy(current) || p.isLegacy(last) {
		return domain.Delta{Kind: domain.DeltaLegacy, Trend: trend}
	}
	if !known {
		return domain.Delta{Kind: domain.DeltaNone}
	}
	return domain.Delta{Kind: domain.DeltaShift, Trend: trend, Magnitude: abs(change)}
}

func (p *Projector) position(current *int) domain.Position {
	switch {
	case current == nil:
		return domain.Position{}
	case p.isLegacy(current):
		return domain.LegacyPosition()
	default:
		return domain.RankedPosition(*current)
	}
}

func positionChange(current, last *int) (int, bool) {
	if current == nil || last == nil {
		return 0, false
	}
	return *current - *last, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

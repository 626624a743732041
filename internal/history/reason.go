package history

import (
	"github.com/xela07ax/demonlist-history/internal/domain"
)

const (
	maxNameLength   = 24
	anonymousDemon  = "A demon"
	truncatedSuffix = "..."
)

// reasonText переводит причину в текст для колонки "Reason".
// Для OtherMoved направление берется относительно этого демона: если он
// поднялся (change < 0), значит другой ушел вниз.
func reasonText(reason domain.Reason, change int, known bool) string {
	switch r := reason.(type) {
	case domain.Added:
		return "Added to list"
	case domain.Moved:
		return "Moved"
	case domain.OtherAddedAbove:
		return displayName(r.Other) + " was added above"
	case domain.OtherMoved:
		verb := "up"
		if known && change < 0 {
			verb = "down"
		}
		return displayName(r.Other) + " was moved " + verb + " past this demon"
	default:
		return domain.Placeholder
	}
}

func displayName(other domain.MinimalDemon) string {
	if other.Name == nil {
		return anonymousDemon
	}
	name := []rune(*other.Name)
	if len(name) > maxNameLength {
		return string(name[:maxNameLength]) + truncatedSuffix
	}
	return string(name)
}

package domain

const (
	DefaultListSize         = 75
	DefaultExtendedListSize = 150
)

// MinimalDemon — минимальное представление демона, вложенное в другие объекты
// (например, в причину перемещения). Любое поле может отсутствовать.
type MinimalDemon struct {
	ID       int     `json:"id"`
	Name     *string `json:"name"`
	Position *int    `json:"position,omitempty"`
}

// ListInfo описывает границы списка: основной и расширенный (после него — legacy).
type ListInfo struct {
	ListSize         int `json:"list_size"`
	ExtendedListSize int `json:"extended_list_size"`
}

// IsLegacy сообщает, находится ли позиция за пределами расширенного списка.
func (li ListInfo) IsLegacy(position int) bool {
	return position > li.ExtendedListSize
}

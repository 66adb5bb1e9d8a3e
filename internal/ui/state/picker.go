// Package state holds view-local state for list pickers: the full item set,
// the filtered view, the cursor and the scroll offset.
package state

// Picker is a filterable list with a cursor.
type Picker struct {
	Items          []Item
	Full           []Item
	Filter         string
	Cursor         int
	ViewportOffset int
}

func NewPicker(items []Item) *Picker {
	p := &Picker{}
	p.UpdateItems(items)
	return p
}

// UpdateItems replaces the item set, keeping the filter.
func (p *Picker) UpdateItems(items []Item) {
	p.Full = CloneItems(items)
	p.applyFilter()
}

// IndexOf returns the filtered index of id, or -1.
func (p *Picker) IndexOf(id string) int {
	for i, item := range p.Items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// Focus moves the cursor to id when it is visible.
func (p *Picker) Focus(id string) bool {
	idx := p.IndexOf(id)
	if idx < 0 {
		return false
	}
	p.Cursor = idx
	return true
}

// Selected returns the item under the cursor.
func (p *Picker) Selected() (Item, bool) {
	if p.Cursor < 0 || p.Cursor >= len(p.Items) {
		return Item{}, false
	}
	return p.Items[p.Cursor], true
}

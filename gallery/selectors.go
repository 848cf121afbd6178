package gallery

// Selectors locate the gallery widget of a review page.
type Selectors struct {
	// Container is the element holding the gallery items.
	Container string
	// ExpandTrigger is resolved inside Container. Clicking it inserts the
	// items that are hidden behind the "+N" tile.
	ExpandTrigger string
	// Item is a single gallery tile carrying a background-image style.
	Item string
}

// DefaultSelectors matches the photo strip of a Google Maps review.
func DefaultSelectors() Selectors {
	return Selectors{
		Container:     ".KtCyie",
		ExpandTrigger: "div.Tap5If",
		Item:          "button.Tya61d",
	}
}

func (s Selectors) withDefaults() Selectors {
	def := DefaultSelectors()

	if s.Container == "" {
		s.Container = def.Container
	}

	if s.ExpandTrigger == "" {
		s.ExpandTrigger = def.ExpandTrigger
	}

	if s.Item == "" {
		s.Item = def.Item
	}

	return s
}

func (s Selectors) scopedTrigger() string {
	return s.Container + " " + s.ExpandTrigger
}

package payment

import "sort"

// OrderCards returns the card instruments of methods in fallback order: the default card first,
// then the remaining cards oldest first. Non-card instruments are dropped and methods is not modified.
// An empty result means the subscriber cannot be renewed.
func OrderCards(methods []Method) []Method {
	cards := make([]Method, 0, len(methods))
	for _, m := range methods {
		if m.Kind == KindCard {
			cards = append(cards, m)
		}
	}
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].IsDefault != cards[j].IsDefault {
			return cards[i].IsDefault
		}
		if !cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].CreatedAt.Before(cards[j].CreatedAt)
		}
		return cards[i].ID < cards[j].ID
	})
	return cards
}

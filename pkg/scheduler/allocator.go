package scheduler

import (
	"fmt"

	verrors "vistara-analytics/pkg/errors"
)

// ChannelRange is the contiguous block of global channel indices owned by a card.
type ChannelRange struct {
	Card  int `json:"card"`
	Start int `json:"start"`
	Count int `json:"count"`
}

// End returns the first global index after the range.
func (r ChannelRange) End() int {
	return r.Start + r.Count
}

// Contains reports whether the global channel index falls in the range.
func (r ChannelRange) Contains(channel int) bool {
	return channel >= r.Start && channel < r.End()
}

func (r ChannelRange) String() string {
	if r.Count == 0 {
		return fmt.Sprintf("card %d: no channels", r.Card)
	}

	return fmt.Sprintf("card %d: channels [%d, %d)", r.Card, r.Start, r.End())
}

// Allocate distributes totalChannels over cardCount cards. Every card gets
// totalChannels/cardCount channels and the first totalChannels%cardCount cards
// get one more, so card 0 always carries the extra load.
func Allocate(totalChannels, cardCount int) ([]int, error) {
	if cardCount <= 0 || totalChannels < 0 {
		return nil, &verrors.AllocationError{TotalChannels: totalChannels, CardCount: cardCount}
	}

	base := totalChannels / cardCount
	remainder := totalChannels % cardCount

	counts := make([]int, cardCount)
	for card := range counts {
		counts[card] = base
		if card < remainder {
			counts[card]++
		}
	}

	return counts, nil
}

// Ranges turns per-card channel counts into global channel ranges, in card
// order, starting at index 0.
func Ranges(counts []int) []ChannelRange {
	ranges := make([]ChannelRange, len(counts))

	start := 0
	for card, count := range counts {
		ranges[card] = ChannelRange{Card: card, Start: start, Count: count}
		start += count
	}

	return ranges
}

// Plan allocates and returns the ranges in one step.
func Plan(totalChannels, cardCount int) ([]ChannelRange, error) {
	counts, err := Allocate(totalChannels, cardCount)
	if err != nil {
		return nil, err
	}

	return Ranges(counts), nil
}

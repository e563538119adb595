package chat

import "slices"

// Reactions maps an emoji to the actors who reacted with it.
//
// Reactor slices keep arrival order for display; membership is what
// matters semantically. An emoji key with no reactors is removed eagerly,
// so a present key always has at least one reactor.
type Reactions map[string][]string

// Has reports whether actor reacted with emoji.
func (r Reactions) Has(emoji, actor string) bool {
	return slices.Contains(r[NormalizeEmoji(emoji)], actor)
}

// Reactors returns the actors for emoji in arrival order.
func (r Reactions) Reactors(emoji string) []string {
	return slices.Clone(r[NormalizeEmoji(emoji)])
}

// Toggle flips actor's membership for emoji and returns the resulting
// reactions. The receiver is not modified. A nil result means no reactions
// remain.
func (r Reactions) Toggle(emoji, actor string) Reactions {
	emoji = NormalizeEmoji(emoji)
	out := r.Clone()
	if out == nil {
		out = make(Reactions, 1)
	}

	reactors := out[emoji]
	if i := slices.Index(reactors, actor); i >= 0 {
		reactors = slices.Delete(reactors, i, i+1)
	} else {
		reactors = append(reactors, actor)
	}

	if len(reactors) == 0 {
		delete(out, emoji)
	} else {
		out[emoji] = reactors
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// Clone returns a deep copy. Clone of an empty set is nil.
func (r Reactions) Clone() Reactions {
	if len(r) == 0 {
		return nil
	}
	out := make(Reactions, len(r))
	for emoji, reactors := range r {
		if len(reactors) == 0 {
			continue
		}
		out[emoji] = slices.Clone(reactors)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

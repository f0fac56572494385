package matchmaking

import "github.com/okian/blindpair/internal/domain/model"

// leftDeficit is how many more times the item was shown right than left.
func leftDeficit(it model.Item) int { return it.RightCount - it.LeftCount }

// assignPositions puts the item with the larger left deficit on the left.
// Equal deficits are decided by a fair coin.
func (e *Engine) assignPositions(a, b model.Item) (left, right string) {
	da, db := leftDeficit(a), leftDeficit(b)
	switch {
	case da > db:
		return a.ID, b.ID
	case db > da:
		return b.ID, a.ID
	}
	if e.coin() {
		return a.ID, b.ID
	}
	return b.ID, a.ID
}

package security

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/codexdlc/gatewaykit/internal/domain"
)

// minCost is the floor for the adaptive KDF; anything weaker is refused.
const minCost = 12

// BcryptHasher hashes and compares passwords. With slots attached the
// expensive calls are throttled through the shared hash cap.
type BcryptHasher struct {
	cost  int
	slots *HashSlots
}

func NewBcryptHasher(cost int, slots *HashSlots) *BcryptHasher {
	if cost < minCost {
		cost = minCost
	}
	return &BcryptHasher{cost: cost, slots: slots}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	var (
		b   []byte
		err error
	)
	h.offload(func() {
		b, err = bcrypt.GenerateFromPassword([]byte(password), h.cost)
	})
	if err != nil {
		return "", domain.ErrInternal(err)
	}
	return string(b), nil
}

// Compare returns nil on match.
func (h *BcryptHasher) Compare(hash string, password string) error {
	var err error
	h.offload(func() {
		err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	})
	return err
}

func (h *BcryptHasher) offload(fn func()) {
	if h.slots == nil {
		fn()
		return
	}
	h.slots.Do(fn)
}

package ledger

import (
	"fmt"
	"iter"
)

// ChainReader is the read surface Flatten needs.
type ChainReader interface {
	AllBrands() iter.Seq[string]
	ChainHead(brand string) (Block, bool)
	Get(uid uint64) (Block, bool)
}

// Flatten walks every brand in AllBrands order from head to tail and returns the
// visible blocks: most recent first within a brand, brands in first-seen order.
// Sentinels are skipped. A chain that revisits a uid fails with ErrCyclicChain.
func Flatten(r ChainReader) ([]Block, error) {
	out := []Block{}
	for brand := range r.AllBrands() {
		err := walkChain(r, brand, func(b Block) error {
			if !b.IsSentinel() {
				out = append(out, b)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func walkChain(r ChainReader, brand string, visit func(Block) error) error {
	cur, ok := r.ChainHead(brand)
	if !ok {
		return nil
	}
	seen := make(map[uint64]struct{})
	for {
		if _, dup := seen[cur.UID]; dup {
			return fmt.Errorf("%w: brand %q revisits uid %d", ErrCyclicChain, brand, cur.UID)
		}
		seen[cur.UID] = struct{}{}

		if err := visit(cur); err != nil {
			return err
		}
		if !cur.HasNext {
			return nil
		}
		next, ok := r.Get(cur.NextUID)
		if !ok {
			return fmt.Errorf("%w: brand %q uid %d points at missing uid %d", ErrBrokenChain, brand, cur.UID, cur.NextUID)
		}
		cur = next
	}
}

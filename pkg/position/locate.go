package position

// Locatable is a tree node that knows its own range and its ordered children.
type Locatable[N any] interface {
	Range() Range
	Children() []N
}

// FindDeepest walks down from root, entering the first child (in declaration order)
// whose range contains pos, and returns the innermost node reached. A child with an
// empty range is entered when pos equals its start, so zero-width placeholder nodes
// can still be located. Root is returned as-is even when it does not contain pos.
func FindDeepest[N Locatable[N]](root N, pos Position) N {
	current := root
	for {
		next, ok := childAt(current, pos)
		if !ok {
			return current
		}
		current = next
	}
}

func childAt[N Locatable[N]](node N, pos Position) (N, bool) {
	for _, child := range node.Children() {
		r := child.Range()
		if r.Contains(pos) || (r.IsEmpty() && r.Start.Equal(pos)) {
			return child, true
		}
	}
	var zero N
	return zero, false
}

// Ancestors returns the chain of nodes from root down to (and including) the deepest
// node containing pos.
func Ancestors[N Locatable[N]](root N, pos Position) []N {
	chain := []N{root}
	current := root
	for {
		next, ok := childAt(current, pos)
		if !ok {
			return chain
		}
		chain = append(chain, next)
		current = next
	}
}

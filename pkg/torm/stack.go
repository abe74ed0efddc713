package torm

type txEntry struct {
	tx          Tx
	propagation Propagation
}

// txStack holds the transaction scopes open on one session. Joined scopes
// share the Tx of the scope below them. Depth 0 means autocommit.
type txStack struct {
	entries []txEntry
}

func (s *txStack) push(tx Tx, p Propagation) {
	s.entries = append(s.entries, txEntry{tx: tx, propagation: p})
}

// pop removes the top entry. ok is false on an empty stack.
func (s *txStack) pop() (entry txEntry, ok bool) {
	if len(s.entries) == 0 {
		return txEntry{}, false
	}
	entry = s.entries[len(s.entries)-1]
	s.entries[len(s.entries)-1] = txEntry{}
	s.entries = s.entries[:len(s.entries)-1]
	return entry, true
}

func (s *txStack) peek() (txEntry, bool) {
	if len(s.entries) == 0 {
		return txEntry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

func (s *txStack) len() int {
	return len(s.entries)
}

// savepointStack mirrors the Nested entries of a txStack.
type savepointStack struct {
	names []string
}

func (s *savepointStack) push(name string) {
	s.names = append(s.names, name)
}

func (s *savepointStack) pop() (string, bool) {
	if len(s.names) == 0 {
		return "", false
	}
	name := s.names[len(s.names)-1]
	s.names = s.names[:len(s.names)-1]
	return name, true
}

func (s *savepointStack) peek() (string, bool) {
	if len(s.names) == 0 {
		return "", false
	}
	return s.names[len(s.names)-1], true
}

func (s *savepointStack) len() int {
	return len(s.names)
}

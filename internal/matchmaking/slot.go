package matchmaking

// waitingSlot holds the single client awaiting a partner.
type waitingSlot struct {
	id    ClientID
	taken bool
}

func (s *waitingSlot) get() (ClientID, bool) {
	return s.id, s.taken
}

func (s *waitingSlot) set(id ClientID) {
	s.id = id
	s.taken = true
}

func (s *waitingSlot) clear() {
	s.id = ""
	s.taken = false
}

func (s *waitingSlot) holds(id ClientID) bool {
	return s.taken && s.id == id
}

package matchmaking

// SessionID identifies a pairing. See NewSessionID.
type SessionID string

// sessionIDSeparator joins the two sorted member ids.
const sessionIDSeparator = "#"

// NewSessionID derives the id of a session between a and b. The ids are
// sorted before joining, so both members compute the same value no matter
// who initiated.
func NewSessionID(a, b ClientID) SessionID {
	if b < a {
		a, b = b, a
	}
	return SessionID(string(a) + sessionIDSeparator + string(b))
}

// Session is one active pairing. Sessions are never mutated after creation.
type Session struct {
	ID SessionID
	A  ClientID
	B  ClientID
}

// Has reports whether id is one of the two members.
func (s Session) Has(id ClientID) bool {
	return s.A == id || s.B == id
}

// Other returns the member that is not id. For a caller that is neither
// member the result is A's partner, B.
func (s Session) Other(id ClientID) ClientID {
	if s.A == id {
		return s.B
	}
	return s.A
}

// sessionTable indexes active sessions by id and by member.
// It is not safe for concurrent use; the Engine guards it.
type sessionTable struct {
	byID     map[SessionID]Session
	byMember map[ClientID]SessionID
}

func newSessionTable() *sessionTable {
	return &sessionTable{
		byID:     make(map[SessionID]Session),
		byMember: make(map[ClientID]SessionID),
	}
}

func (t *sessionTable) add(s Session) {
	t.byID[s.ID] = s
	t.byMember[s.A] = s.ID
	t.byMember[s.B] = s.ID
}

func (t *sessionTable) get(id SessionID) (Session, bool) {
	s, ok := t.byID[id]
	return s, ok
}

// lookupMember returns the session containing id, if any.
func (t *sessionTable) lookupMember(id ClientID) (Session, bool) {
	sid, ok := t.byMember[id]
	if !ok {
		return Session{}, false
	}
	return t.get(sid)
}

func (t *sessionTable) remove(id SessionID) {
	s, ok := t.byID[id]
	if !ok {
		return
	}
	delete(t.byID, id)
	delete(t.byMember, s.A)
	delete(t.byMember, s.B)
}

func (t *sessionTable) len() int {
	return len(t.byID)
}

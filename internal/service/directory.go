package service

// Role of a bound connection within a game.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Binding is the directory entry for one live connection: who it is and
// which game it belongs to. Connections are identified by an id allocated
// at accept time, never by pointer identity.
type Binding struct {
	ConnID   string
	Role     Role
	GameCode string
	PlayerID string
	TeamName string
}

// Directory maps connection ids to their role metadata. It backs broadcast
// fan-out and disconnect cleanup. Callers hold the coordinator lock.
type Directory struct {
	byConn map[string]*Binding
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{byConn: make(map[string]*Binding)}
}

// Bind records (or replaces) the binding for a connection. The last channel
// to bind for a given (code, playerId) becomes the effective send target.
func (d *Directory) Bind(b Binding) {
	d.byConn[b.ConnID] = &b
}

// Unbind removes the binding, returning it for cleanup decisions.
func (d *Directory) Unbind(connID string) (Binding, bool) {
	b, ok := d.byConn[connID]
	if !ok {
		return Binding{}, false
	}
	delete(d.byConn, connID)
	return *b, true
}

// Get returns the binding for a connection.
func (d *Directory) Get(connID string) (Binding, bool) {
	b, ok := d.byConn[connID]
	if !ok {
		return Binding{}, false
	}
	return *b, true
}

// FindHost returns the connection id currently holding the host role for a
// game code.
func (d *Directory) FindHost(code string) (string, bool) {
	for id, b := range d.byConn {
		if b.GameCode == code && b.Role == RoleHost {
			return id, true
		}
	}
	return "", false
}

// ConnsInGame returns connection ids bound to the game, filtered by the
// predicate (nil matches all).
func (d *Directory) ConnsInGame(code string, match func(Binding) bool) []string {
	var out []string
	for id, b := range d.byConn {
		if b.GameCode != code {
			continue
		}
		if match == nil || match(*b) {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of bound connections.
func (d *Directory) Len() int {
	return len(d.byConn)
}

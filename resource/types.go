package resource

// ID is an opaque reference to a resource in a table (the script-side rid).
// ID 0 is reserved and always invalid.
type ID uint32

// Resource is a native object owned by a table. Name is diagnostic only and
// shows up in resource listings; Close releases the native object.
type Resource interface {
	Name() string
	Close() error
}

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventClosed
	EventTaken
	EventCloseFailed
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventClosed:
		return "closed"
	case EventTaken:
		return "taken"
	case EventCloseFailed:
		return "close_failed"
	}
	return "unknown"
}

// Event represents a resource lifecycle event.
type Event struct {
	Err  error
	Name string
	ID   ID
	Type EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Entry is one row of a resource listing.
type Entry struct {
	Name string
	ID   ID
}

// Backend provides the underlying storage mechanism for resources.
type Backend interface {
	// Create stores a value and returns a fresh ID.
	Create(res Resource) (ID, error)

	// Get retrieves a value by ID.
	Get(id ID) (Resource, bool)

	// Remove unlinks a resource. The second result reports whether the
	// caller is now responsible for closing it (false while borrowed).
	Remove(id ID) (Resource, bool, bool)

	// Borrow increments the borrow count for an ID.
	Borrow(id ID) (Resource, bool)

	// ReturnBorrow decrements the borrow count. It returns the resource when
	// the last borrow of an already-removed entry is returned, so the caller
	// can perform the deferred close.
	ReturnBorrow(id ID) (Resource, bool)

	// Close stops accepting new resources and unlinks every resource that
	// is not borrowed, returning them to the caller. Borrowed resources are
	// returned separately; their last ReturnBorrow hands them back.
	Close() (closeNow, leased []Held)
}

// Canceler is implemented by resources whose in-flight operations can be
// interrupted. Close calls it when the resource is still leased, so the
// lease holder returns early and the deferred native close can run.
type Canceler interface {
	CancelPending()
}

// Held is a resource unlinked from a backend that the caller must close.
type Held struct {
	Value Resource
	ID    ID
}

// Lease is a temporary reference to a borrowed resource. Release must be
// called exactly once.
type Lease[T Resource] struct {
	Value   T
	release func() error
}

// Release returns the borrow. If the resource was closed while leased, the
// deferred native close happens here and its error is returned.
func (l *Lease[T]) Release() error {
	if l.release == nil {
		return nil
	}
	r := l.release
	l.release = nil
	return r()
}

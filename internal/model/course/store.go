package course

// Store exposes course profiles to handlers and the chat service.
type Store interface {
	List() []Profile
	FindByID(id string) (Profile, bool)
	Default() Profile
}

// MemoryStore implements Store with an in-memory slice. The first profile is the default.
type MemoryStore struct {
	items []Profile
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied profiles.
func NewMemoryStore(items ...Profile) *MemoryStore {
	return &MemoryStore{items: append([]Profile(nil), items...)}
}

// List returns every known profile.
func (s *MemoryStore) List() []Profile {
	return append([]Profile(nil), s.items...)
}

// FindByID looks up a profile by identifier.
func (s *MemoryStore) FindByID(id string) (Profile, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Profile{}, false
}

// Default returns the first profile, or the built-in seed when the store is empty.
func (s *MemoryStore) Default() Profile {
	if len(s.items) == 0 {
		return Seed()
	}
	return s.items[0]
}

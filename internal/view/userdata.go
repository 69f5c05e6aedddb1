package view

// Destructor releases whatever a consumer attached to a prefix slot.
type Destructor func(any)

// UserData is the per-prefix user-data channel (C5). Spec §4.5: each view
// allows attaching one opaque value per prefix with a single view-wide
// destructor, invoked exactly once per prefix when the view is cleared. At
// most one consumer owns the slot per view — here, the geo-visibility
// consumer (C6). Set keeps the first destructor registered for a view; a
// later, different destructor is ignored, not rejected.
type UserData struct {
	slots   map[PrefixKey]any
	destroy Destructor
}

// NewUserData returns an empty per-prefix user-data channel.
func NewUserData() *UserData {
	return &UserData{slots: make(map[PrefixKey]any)}
}

// Get returns the value attached to key, if any.
func (u *UserData) Get(key PrefixKey) (any, bool) {
	v, ok := u.slots[key]
	return v, ok
}

// Set attaches value to key under destroy. The destructor registered by the
// first call for a given view sticks for the life of that view; Go funcs
// aren't comparable, so a second, different destructor can't be detected at
// runtime — by convention only one consumer (the geo-visibility consumer)
// ever calls Set, which is what the spec's "API forbids it" amounts to here.
func (u *UserData) Set(key PrefixKey, value any, destroy Destructor) error {
	if u.destroy == nil {
		u.destroy = destroy
	}
	u.slots[key] = value
	return nil
}

// Clear invokes the registered destructor once per populated slot, then
// empties the channel so the next view starts from a clean state.
func (u *UserData) Clear() {
	if u.destroy != nil {
		for _, v := range u.slots {
			u.destroy(v)
		}
	}
	u.slots = make(map[PrefixKey]any)
	u.destroy = nil
}

// Len reports how many prefixes currently carry attached data.
func (u *UserData) Len() int { return len(u.slots) }

package composer

import (
	"image"
	"sync"
)

// CameraSnapshot is a read-only view of one camera slot as of a Snapshot call.
// Present is false for identifiers that have never been updated.
type CameraSnapshot struct {
	Image   image.Image
	Active  bool
	Seq     uint64
	Present bool
}

// cameraSlot holds the most recent image for one camera. Each slot has its own
// lock so updates to different cameras never block each other; the lock is
// held only for the pointer/metadata swap, never while scaling.
type cameraSlot struct {
	mu     sync.Mutex
	img    image.Image
	active bool
	seq    uint64
}

// CameraStore is a thread-safe keyed cache of the most recent raster image and
// liveness flag per camera identifier. Slots are created on first update and
// persist for the process lifetime; "inactive" substitutes for removal.
type CameraStore struct {
	mu    sync.RWMutex
	slots map[string]*cameraSlot
}

// NewCameraStore returns an empty store.
func NewCameraStore() *CameraStore {
	return &CameraStore{slots: make(map[string]*cameraSlot)}
}

// Update replaces the slot's image wholesale, sets the active flag, and bumps
// the slot's sequence number. Safe for concurrent use with Snapshot and with
// updates to other identifiers.
func (s *CameraStore) Update(id string, img image.Image, active bool) {
	slot := s.slot(id)
	slot.mu.Lock()
	slot.img = img
	slot.active = active
	slot.seq++
	slot.mu.Unlock()
}

// SetActive flips a camera's liveness without replacing its image. A camera
// that has never been updated gets an empty slot so the flag is retained.
func (s *CameraStore) SetActive(id string, active bool) {
	slot := s.slot(id)
	slot.mu.Lock()
	if slot.active != active {
		slot.active = active
		slot.seq++
	}
	slot.mu.Unlock()
}

// Snapshot returns, for each requested identifier, the slot's image handle,
// active flag, and sequence number as of the call. Unknown identifiers return
// a snapshot with Present=false; they are a normal state, not an error.
func (s *CameraStore) Snapshot(ids []string) map[string]CameraSnapshot {
	out := make(map[string]CameraSnapshot, len(ids))

	s.mu.RLock()
	slots := make(map[string]*cameraSlot, len(ids))
	for _, id := range ids {
		slots[id] = s.slots[id]
	}
	s.mu.RUnlock()

	for id, slot := range slots {
		if slot == nil {
			out[id] = CameraSnapshot{}
			continue
		}
		slot.mu.Lock()
		out[id] = CameraSnapshot{Image: slot.img, Active: slot.active, Seq: slot.seq, Present: slot.img != nil}
		slot.mu.Unlock()
	}
	return out
}

// ActiveCount returns the number of cameras currently flagged active.
// Used for metrics.
func (s *CameraStore) ActiveCount() int {
	s.mu.RLock()
	slots := make([]*cameraSlot, 0, len(s.slots))
	for _, slot := range s.slots {
		slots = append(slots, slot)
	}
	s.mu.RUnlock()

	n := 0
	for _, slot := range slots {
		slot.mu.Lock()
		if slot.active {
			n++
		}
		slot.mu.Unlock()
	}
	return n
}

func (s *CameraStore) slot(id string) *cameraSlot {
	s.mu.RLock()
	slot, ok := s.slots[id]
	s.mu.RUnlock()
	if ok {
		return slot
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok := s.slots[id]; ok {
		return slot
	}
	slot = &cameraSlot{}
	s.slots[id] = slot
	return slot
}

// SensorState is the externally fed variable set consumed by overlay
// templates. Merges replace only the named keys they supply; the version
// counter bumps on every merge so overlay results can be cached per version.
type SensorState struct {
	mu      sync.Mutex
	vars    map[string]Value
	version uint64
}

// NewSensorState returns an empty sensor variable set.
func NewSensorState() *SensorState {
	return &SensorState{vars: make(map[string]Value)}
}

// Merge replaces the supplied keys, leaving all others untouched.
func (s *SensorState) Merge(values map[string]Value) {
	if len(values) == 0 {
		return
	}
	s.mu.Lock()
	for name, v := range values {
		s.vars[name] = v
	}
	s.version++
	s.mu.Unlock()
}

// Snapshot returns a copy of the variable set and its version.
func (s *SensorState) Snapshot() (vars map[string]Value, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vars = make(map[string]Value, len(s.vars))
	for name, v := range s.vars {
		vars[name] = v
	}
	return vars, s.version
}

package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrAliasExists = errors.New("alias already exists")
	ErrInvalidID   = errors.New("invalid credential id")
)

const (
	unnamed        = "unnamed"
	unnamedPattern = "unnamed_"
)

// Store is the process-wide credential pool.
//
// Invariants held across every public mutation:
//  1. records holds one slot per id; a slot is live (non-nil) or free
//     (nil).
//  2. every id in idMap or aliasMap points at a live slot.
//  3. every id in freeIDs points at a free slot; free and live ids are
//     disjoint.
//  4. for every live record r at id i: idMap[r.Credential.Primary.Key()] == i
//     and aliasMap[r.Alias] == i.
//
// Readers take the shared lock only long enough to copy a snapshot out;
// writers never do I/O under the exclusive lock.
type Store struct {
	mu       sync.RWMutex
	records  []*Record
	idMap    map[Key]int
	aliasMap map[string]int
	freeIDs  []int // FIFO: reuse the earliest freed id first
	queue    *queue
}

func NewStore(capacity int) *Store {
	return &Store{
		records:  make([]*Record, 0, capacity),
		idMap:    make(map[Key]int, capacity),
		aliasMap: make(map[string]int, capacity),
		queue:    newQueue(capacity),
	}
}

// nextID returns the id the next Add will assign, without committing it.
func (s *Store) nextID() int {
	if len(s.freeIDs) > 0 {
		return s.freeIDs[0]
	}
	return len(s.records)
}

// Add inserts a credential. An empty alias, "unnamed", or any alias
// starting with "unnamed_" is replaced by one generated from the id the
// credential is about to receive.
func (s *Store) Add(cred Credential, alias string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alias == "" || alias == unnamed || hasUnnamedPrefix(alias) {
		alias = fmt.Sprintf("%s%d", unnamedPattern, s.nextID())
	}
	if _, exists := s.aliasMap[alias]; exists {
		return 0, ErrAliasExists
	}

	var id int
	if len(s.freeIDs) > 0 {
		id = s.freeIDs[0]
		s.freeIDs = s.freeIDs[1:]
	} else {
		id = len(s.records)
		s.records = append(s.records, nil)
	}

	rec := &Record{Credential: cred, Alias: alias, Enabled: true}
	key := cred.Primary.Key()
	s.records[id] = rec
	s.idMap[key] = id
	s.aliasMap[alias] = id
	s.queue.push(key, id)
	return id, nil
}

// Remove deletes a credential by id and returns it. The id is queued
// for reuse.
func (s *Store) Remove(id int) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordAt(id)
	if rec == nil {
		return nil, false
	}

	key := rec.Credential.Primary.Key()
	delete(s.idMap, key)
	delete(s.aliasMap, rec.Alias)
	s.queue.remove(key)
	s.records[id] = nil
	s.freeIDs = append(s.freeIDs, id)
	return rec, true
}

// RemoveByAlias deletes a credential by alias.
func (s *Store) RemoveByAlias(alias string) (*Record, bool) {
	s.mu.RLock()
	id, ok := s.aliasMap[alias]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return s.Remove(id)
}

func (s *Store) recordAt(id int) *Record {
	if id < 0 || id >= len(s.records) {
		return nil
	}
	return s.records[id]
}

// Snapshot is a copy of a record handed to request pipelines; it never
// aliases pool memory.
type Snapshot struct {
	ID         int
	Alias      string
	Credential Credential
}

func snapshotOf(id int, rec *Record) Snapshot {
	cred := rec.Credential
	if rec.Credential.Secondary != nil {
		sec := *rec.Credential.Secondary
		cred.Secondary = &sec
	}
	return Snapshot{ID: id, Alias: rec.Alias, Credential: cred}
}

// GetByID copies the record at id.
func (s *Store) GetByID(id int) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.recordAt(id)
	if rec == nil {
		return Snapshot{}, false
	}
	return snapshotOf(id, rec), true
}

// GetByAlias copies the record with the given alias.
func (s *Store) GetByAlias(alias string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.aliasMap[alias]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(id, s.records[id]), true
}

// ListEntry is one row of the admin listing.
type ListEntry struct {
	ID      int
	Alias   string
	Role    Role
	Enabled bool
	Health  Health
	Billing BillingKind
	UserID  string
}

// List returns the live records in id order.
func (s *Store) List() []ListEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ListEntry, 0, len(s.idMap))
	for id, rec := range s.records {
		if rec == nil {
			continue
		}
		out = append(out, ListEntry{
			ID:      id,
			Alias:   rec.Alias,
			Role:    rec.Credential.Primary.Role,
			Enabled: rec.Enabled,
			Health:  rec.Health,
			Billing: rec.Billing,
			UserID:  rec.Credential.Primary.UserID,
		})
	}
	return out
}

// Len reports the number of live records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Rename changes a record's alias. Unnamed-style aliases are regenerated
// from the record's own id.
func (s *Store) Rename(id int, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordAt(id)
	if rec == nil {
		return ErrInvalidID
	}
	if alias == "" || alias == unnamed || hasUnnamedPrefix(alias) {
		alias = fmt.Sprintf("%s%d", unnamedPattern, id)
	}
	if _, exists := s.aliasMap[alias]; exists {
		return ErrAliasExists
	}
	delete(s.aliasMap, rec.Alias)
	rec.Alias = alias
	s.aliasMap[alias] = id
	return nil
}

// RotateClientKeys regenerates every record's client key and session id
// in one exclusive section.
func (s *Store) RotateClientKeys() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec == nil {
			continue
		}
		rec.Credential.ClientKey = NewClientKey()
		rec.Credential.SessionID = uuid.New()
	}
}

// Mutate runs fn against the record's credential under the write lock.
// If fn changes the primary token's key, both the key index and the
// queue entry are rewritten before the lock is released, so no reader
// can observe a stale index.
func (s *Store) Mutate(id int, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordAt(id)
	if rec == nil {
		return ErrInvalidID
	}
	oldKey := rec.Credential.Primary.Key()
	fn(rec)
	newKey := rec.Credential.Primary.Key()
	if newKey != oldKey {
		delete(s.idMap, oldKey)
		s.idMap[newKey] = id
		s.queue.setKey(oldKey, newKey)
	}
	return nil
}

// MutateByKey is Mutate addressed by token key.
func (s *Store) MutateByKey(key Key, fn func(*Record)) error {
	s.mu.RLock()
	id, ok := s.idMap[key]
	s.mu.RUnlock()
	if !ok {
		return ErrInvalidID
	}
	return s.Mutate(id, fn)
}

// Select round-robins over the queue's candidates starting at the
// queue's cursor, skipping records that are disabled, backing off, or
// whose billing class does not match the queue. The cursor advances to
// just past the first hit.
func (s *Store) Select(qt QueueType, now uint64) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.queue.entries)
	if n == 0 {
		return Snapshot{}, false
	}

	head := &queueHeads[qt]
	start := int(head.Load())

	for i := 0; i < n; i++ {
		index := (start + i) % n
		ent := s.queue.entries[index]

		// The hint is a direct slot index; it is authoritative only while
		// the slot still holds the same key.
		id := ent.idHint
		rec := s.recordAt(id)
		if rec == nil || rec.Credential.Primary.Key() != ent.key {
			var ok bool
			id, ok = s.idMap[ent.key]
			if !ok {
				continue
			}
			rec = s.records[id]
		}

		if !rec.Available(now) {
			continue
		}
		if (rec.Billing == BillingPaid) != qt.paid() {
			continue
		}

		head.Store(uint64((index + 1) % n))
		return snapshotOf(id, rec), true
	}
	return Snapshot{}, false
}

func hasUnnamedPrefix(alias string) bool {
	return len(alias) >= len(unnamedPattern) && alias[:len(unnamedPattern)] == unnamedPattern
}

// Package location keeps the ZIP code listing queries are scoped to.
package location

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// StorageKey is the one key this package persists.
const StorageKey = "zip"

// ErrInvalidZip is returned by Set for anything but five digits or "".
var ErrInvalidZip = errors.New("ZIP code must be 5 digits")

// Store is the current ZIP. The empty string means global search.
type Store struct {
	storage Storage

	mu   sync.RWMutex
	zip  string
	subs map[int]func(string)
	next int
}

// Open reads the stored ZIP once.
func Open(storage Storage) (*Store, error) {
	raw, ok, err := storage.Get(StorageKey)
	if err != nil {
		return nil, fmt.Errorf("loading location: %w", err)
	}
	s := &Store{storage: storage, subs: make(map[int]func(string))}
	if ok {
		s.zip = Normalize(raw)
	}
	return s, nil
}

// Normalize turns a stored value into a zero padded 5 digit ZIP. Leading
// digits are kept and anything after them ignored; a value with no leading
// digits is "".
func Normalize(raw string) string {
	end := 0
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end == 0 {
		return ""
	}
	n, err := strconv.ParseUint(raw[:end], 10, 64)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%05d", n%100000)
}

// Valid reports whether zip is exactly five ASCII digits.
func Valid(zip string) bool {
	if len(zip) != 5 {
		return false
	}
	for i := 0; i < len(zip); i++ {
		if zip[i] < '0' || zip[i] > '9' {
			return false
		}
	}
	return true
}

// Zip is the current value.
func (s *Store) Zip() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zip
}

// Label is what a location button shows.
func (s *Store) Label() string {
	if z := s.Zip(); z != "" {
		return z
	}
	return "Global"
}

// Set stores zip, or clears it when zip is "". Memory is updated even if
// the write to storage fails; the error is still returned.
func (s *Store) Set(zip string) error {
	if zip != "" && !Valid(zip) {
		return ErrInvalidZip
	}

	s.mu.Lock()
	s.zip = zip
	fns := make([]func(string), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	var err error
	if zip == "" {
		err = s.storage.Delete(StorageKey)
	} else {
		err = s.storage.Set(StorageKey, zip)
	}
	for _, fn := range fns {
		fn(zip)
	}
	if err != nil {
		return fmt.Errorf("saving location: %w", err)
	}
	return nil
}

// Subscribe calls fn with every new value until cancel runs.
func (s *Store) Subscribe(fn func(zip string)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

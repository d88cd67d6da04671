// Package store persists the small amount of state that must survive a
// restart: the XDivert enabled flag and what each subscription looked like
// when it was last synchronized.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/sweeney/msim-telephony/internal/phone"
)

// ErrNotFound is returned by Get for a key that was never set.
var ErrNotFound = errors.New("store: key not found")

// Store is a string key/value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// KeyXDivertEnabled holds "true" while XDivert is configured on both SIMs.
const KeyXDivertEnabled = "xdivert_enabled"

func subKey(sub phone.Subscription, name string) string {
	return fmt.Sprintf("sub%d_%s", int(sub), name)
}

// KeyIMSI is the IMSI stored at the last successful sync.
func KeyIMSI(sub phone.Subscription) string { return subKey(sub, "imsi") }

// KeyLineNumber is the line number stored at the last successful sync.
func KeyLineNumber(sub phone.Subscription) string { return subKey(sub, "line_number") }

// KeyForwardNumber is the call-forward target configured on sub.
func KeyForwardNumber(sub phone.Subscription) string { return subKey(sub, "cf_number") }

// KeyCallWaiting is the call-waiting setting configured on sub.
func KeyCallWaiting(sub phone.Subscription) string { return subKey(sub, "cw_enabled") }

// GetBool reads a flag written by SetBool. A missing key is false.
func GetBool(ctx context.Context, s Store, key string) (bool, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("store: %s: %w", key, err)
	}
	return b, nil
}

func SetBool(ctx context.Context, s Store, key string, v bool) error {
	return s.Set(ctx, key, strconv.FormatBool(v))
}

// GetString reads key, returning "" when it is missing.
func GetString(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// Memory is an in-process Store for tests and for running without
// persistence.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Close() error { return nil }

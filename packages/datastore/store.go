// Package datastore keeps the values produced by output steps during a run,
// namespaced by user, testcase and scenario.
package datastore

import (
	"errors"
	"sync"

	"github.com/abdul-hamid-achik/flowspec/packages/flowerr"
)

// ErrUserRequired is returned when an operation is attempted without a user id.
var ErrUserRequired = errors.New("userId is required for data store operations")

// scenarioOutputs maps key -> value.
type scenarioOutputs map[string]any

// Store holds user -> testcase -> scenario -> key -> value.
// Namespacing by user is the only isolation between tenants; the lock
// protects the map structure when testcases of one user run concurrently.
type Store struct {
	mu      sync.RWMutex
	outputs map[string]map[string]map[string]scenarioOutputs
}

func New() *Store {
	return &Store{
		outputs: make(map[string]map[string]map[string]scenarioOutputs),
	}
}

// Reset clears every entry of one user. Other users are untouched.
func (s *Store) Reset(userID string) error {
	if userID == "" {
		return ErrUserRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outputs, userID)
	return nil
}

// Set inserts or overwrites a value.
func (s *Store) Set(userID, testcaseID, scenarioID, key string, value any) error {
	if userID == "" {
		return ErrUserRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	testcases, ok := s.outputs[userID]
	if !ok {
		testcases = make(map[string]map[string]scenarioOutputs)
		s.outputs[userID] = testcases
	}
	scenarios, ok := testcases[testcaseID]
	if !ok {
		scenarios = make(map[string]scenarioOutputs)
		testcases[testcaseID] = scenarios
	}
	values, ok := scenarios[scenarioID]
	if !ok {
		values = make(scenarioOutputs)
		scenarios[scenarioID] = values
	}
	values[key] = value
	return nil
}

// Get returns a stored value. An absent key is a MISSING_OUTPUT failure.
func (s *Store) Get(userID, testcaseID, scenarioID, key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.outputs[userID][testcaseID][scenarioID][key]; ok {
		return v, nil
	}
	return nil, flowerr.MissingOutput(userID, testcaseID, scenarioID, key)
}

// GetAll returns a copy of every value stored for one scenario.
func (s *Store) GetAll(userID, testcaseID, scenarioID string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]any)
	for k, v := range s.outputs[userID][testcaseID][scenarioID] {
		result[k] = v
	}
	return result
}

// GetTestcase returns a copy of every value stored for one testcase,
// keyed by scenario id.
func (s *Store) GetTestcase(userID, testcaseID string) map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]map[string]any)
	for scenarioID, values := range s.outputs[userID][testcaseID] {
		copied := make(map[string]any, len(values))
		for k, v := range values {
			copied[k] = v
		}
		result[scenarioID] = copied
	}
	return result
}

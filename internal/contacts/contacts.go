// Package contacts records the people seen in fetched envelopes.
package contacts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/cache"
	"github.com/brandon/mailsync/pkg/types"
)

const seenCacheSize = 4096

var automatedMarkers = []string{"noreply", "no-reply", "donotreply"}

// IsValid reports whether a contact looks like a person worth suggesting
func IsValid(contact types.Contact) bool {
	if contact.Name == "" {
		return false
	}
	for _, marker := range automatedMarkers {
		if strings.Contains(contact.Address, marker) {
			return false
		}
	}
	if strings.HasPrefix(contact.Address, "reply") || strings.HasPrefix(contact.Address, "bounce") {
		return false
	}
	return !strings.Contains(contact.Name, " via ")
}

// Store persists contacts and keeps an in-memory view of them.
// The view is dropped by Invalidate and after every write.
type Store struct {
	cache  *cache.Cache
	logger *logrus.Entry

	mu   sync.Mutex
	all  []types.Contact
	seen *lru.Cache[types.Contact, struct{}]
}

// NewStore creates a contacts store on top of the persistent cache
func NewStore(c *cache.Cache, logger *logrus.Logger) (*Store, error) {
	seen, err := lru.New[types.Contact, struct{}](seenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create contacts cache: %w", err)
	}
	return &Store{
		cache:  c,
		logger: logger.WithField("component", "contacts"),
		seen:   seen,
	}, nil
}

// Add records the valid contacts among the given ones
func (s *Store) Add(ctx context.Context, contacts []types.Contact) error {
	var fresh []types.Contact
	for _, contact := range contacts {
		if !IsValid(contact) {
			s.logger.WithField("address", contact.Address).Debug("Not saving invalid contact")
			continue
		}
		if s.seen.Contains(contact) {
			continue
		}
		fresh = append(fresh, contact)
	}
	if len(fresh) == 0 {
		return nil
	}

	if err := s.cache.AddContacts(ctx, fresh); err != nil {
		return err
	}
	for _, contact := range fresh {
		s.seen.Add(contact, struct{}{})
	}

	s.logger.WithField("count", len(fresh)).Debug("Saved contacts")
	s.dropView()
	return nil
}

// All returns every stored contact
func (s *Store) All(ctx context.Context) ([]types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.all != nil {
		return s.all, nil
	}

	all, err := s.cache.SearchContacts(ctx, cache.ContactSearch{})
	if err != nil {
		return nil, err
	}
	if all == nil {
		all = []types.Contact{}
	}
	s.all = all
	return all, nil
}

// Search matches query against names and addresses
func (s *Store) Search(ctx context.Context, query string, limit int) ([]types.Contact, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var matches []types.Contact
	for _, contact := range all {
		if strings.Contains(strings.ToLower(contact.Name), query) ||
			strings.Contains(strings.ToLower(contact.Address), query) {
			matches = append(matches, contact)
			if limit > 0 && len(matches) == limit {
				break
			}
		}
	}
	return matches, nil
}

// Delete removes a contact
func (s *Store) Delete(ctx context.Context, contact types.Contact) error {
	if err := s.cache.DeleteContact(ctx, contact); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// Invalidate forgets everything held in memory so the next read goes to the database
func (s *Store) Invalidate() {
	s.seen.Purge()
	s.dropView()
}

func (s *Store) dropView() {
	s.mu.Lock()
	s.all = nil
	s.mu.Unlock()
}

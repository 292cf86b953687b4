package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/brandon/mailsync/pkg/types"
)

// ContactSearch contains contact search parameters
type ContactSearch struct {
	Name    *string
	Address *string
	Limit   int
}

// AddContacts records contacts, ignoring ones already stored
func (c *Cache) AddContacts(ctx context.Context, contacts []types.Contact) error {
	if len(contacts) == 0 {
		return nil
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, contact := range contacts {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO contacts (name, address) VALUES (?, ?) ON CONFLICT(name, address) DO NOTHING",
			contact.Name, contact.Address); err != nil {
			return fmt.Errorf("failed to add contact: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit contacts: %w", err)
	}
	return nil
}

// DeleteContact removes one contact
func (c *Cache) DeleteContact(ctx context.Context, contact types.Contact) error {
	if _, err := c.db.ExecContext(ctx,
		"DELETE FROM contacts WHERE name = ? AND address = ?",
		contact.Name, contact.Address); err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	return nil
}

// SearchContacts returns stored contacts matching every given condition
func (c *Cache) SearchContacts(ctx context.Context, opts ContactSearch) ([]types.Contact, error) {
	var conditions []string
	var args []interface{}

	if opts.Name != nil {
		conditions = append(conditions, "name LIKE ?")
		args = append(args, "%"+*opts.Name+"%")
	}

	if opts.Address != nil {
		conditions = append(conditions, "address LIKE ?")
		args = append(args, "%"+*opts.Address+"%")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	limitClause := ""
	if opts.Limit > 0 {
		limitClause = "LIMIT ?"
		args = append(args, opts.Limit)
	}

	query := fmt.Sprintf(`
		SELECT name, address
		FROM contacts
		%s
		ORDER BY name, address
		%s
	`, whereClause, limitClause)

	var contacts []types.Contact
	if err := c.db.SelectContext(ctx, &contacts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search contacts: %w", err)
	}
	return contacts, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PublicationExists reports whether a publication with this name exists in
// the client's database.
func (c *Client) PublicationExists(ctx context.Context, name string) (bool, error) {
	return c.exists(ctx, `SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_publication WHERE pubname = $1)`, name)
}

// CreatePublication publishes a single table.
func (c *Client) CreatePublication(ctx context.Context, name, schema, table string) error {
	sql := fmt.Sprintf("CREATE PUBLICATION %s FOR TABLE %s", Ident(name), pgx.Identifier{schema, table}.Sanitize())
	if _, err := c.q.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create publication %s: %w", name, err)
	}
	return nil
}

// DropPublication drops the publication.
func (c *Client) DropPublication(ctx context.Context, name string) error {
	if _, err := c.q.Exec(ctx, "DROP PUBLICATION "+Ident(name)); err != nil {
		return fmt.Errorf("drop publication %s: %w", name, err)
	}
	return nil
}

// SlotExists reports whether a replication slot with this name exists (slots
// are cluster-wide).
func (c *Client) SlotExists(ctx context.Context, name string) (bool, error) {
	return c.exists(ctx, `SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_replication_slots WHERE slot_name = $1)`, name)
}

// SlotActive reports whether a walsender currently uses the slot. A missing
// slot is reported as inactive.
func (c *Client) SlotActive(ctx context.Context, name string) (bool, error) {
	var active bool
	err := c.q.QueryRow(ctx, `SELECT active FROM pg_catalog.pg_replication_slots WHERE slot_name = $1`, name).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("slot %s state: %w", name, err)
	}
	return active, nil
}

// CreateLogicalSlot creates a pgoutput logical slot in the client's database
// and returns its consistent point LSN.
func (c *Client) CreateLogicalSlot(ctx context.Context, name string) (string, error) {
	var lsn string
	err := c.q.QueryRow(ctx, `SELECT lsn::text FROM pg_catalog.pg_create_logical_replication_slot($1, 'pgoutput')`, name).Scan(&lsn)
	if err != nil {
		return "", fmt.Errorf("create replication slot %s: %w", name, err)
	}
	return lsn, nil
}

// DropSlot drops the replication slot.
func (c *Client) DropSlot(ctx context.Context, name string) error {
	if _, err := c.q.Exec(ctx, `SELECT pg_catalog.pg_drop_replication_slot($1)`, name); err != nil {
		return fmt.Errorf("drop replication slot %s: %w", name, err)
	}
	return nil
}

// SubscriptionExists reports whether a subscription with this name exists in
// the client's database.
func (c *Client) SubscriptionExists(ctx context.Context, name string) (bool, error) {
	return c.exists(ctx, `SELECT EXISTS (
		SELECT 1 FROM pg_catalog.pg_subscription s
		JOIN pg_catalog.pg_database d ON d.oid = s.subdbid
		WHERE s.subname = $1 AND d.datname = pg_catalog.current_database())`, name)
}

// Subscription describes a subscription bound to a pre-created slot.
type Subscription struct {
	Name        string
	Publication string
	Slot        string
	ConnInfo    string
}

// CreateSubscription creates a subscription that reuses an existing slot and
// skips the initial copy (data was restored already).
func (c *Client) CreateSubscription(ctx context.Context, s Subscription) error {
	sql := fmt.Sprintf("CREATE SUBSCRIPTION %s CONNECTION %s PUBLICATION %s WITH (create_slot = false, slot_name = %s, copy_data = false)",
		Ident(s.Name), Literal(s.ConnInfo), Ident(s.Publication), Literal(s.Slot))
	if _, err := c.q.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create subscription %s: %w", s.Name, err)
	}
	return nil
}

// DetachSubscription disables the subscription and dissociates it from its slot
// so it can be dropped without touching the publisher.
func (c *Client) DetachSubscription(ctx context.Context, name string) error {
	for _, sql := range DetachStatements(Ident(name)) {
		if _, err := c.q.Exec(ctx, sql); err != nil {
			return fmt.Errorf("detach subscription %s: %w", name, err)
		}
	}
	return nil
}

// DropSubscription drops the subscription.
func (c *Client) DropSubscription(ctx context.Context, name string) error {
	if _, err := c.q.Exec(ctx, "DROP SUBSCRIPTION "+Ident(name)); err != nil {
		return fmt.Errorf("drop subscription %s: %w", name, err)
	}
	return nil
}

// DetachStatements returns the statements detaching subscription sub (already
// quoted) from its slot.
func DetachStatements(sub string) []string {
	return []string{
		"ALTER SUBSCRIPTION " + sub + " DISABLE",
		"ALTER SUBSCRIPTION " + sub + " SET (slot_name = NONE)",
	}
}

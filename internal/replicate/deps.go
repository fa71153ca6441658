package replicate

import (
	"context"
	"net"
	"time"

	"github.com/vbp1/tablerepl/internal/pgdump"
	"github.com/vbp1/tablerepl/internal/postgres"
)

// Database is the administrative surface of one database used by the
// pipeline and the cleanup path. *postgres.Client implements it.
type Database interface {
	Close()
	EnsureVersion(ctx context.Context, min int) error
	WalLevel(ctx context.Context) (string, error)
	TableExists(ctx context.Context, schema, table string) (bool, error)
	TableSize(ctx context.Context, schema, table string) (int64, bool, error)

	PublicationExists(ctx context.Context, name string) (bool, error)
	CreatePublication(ctx context.Context, name, schema, table string) error
	DropPublication(ctx context.Context, name string) error

	SlotExists(ctx context.Context, name string) (bool, error)
	SlotActive(ctx context.Context, name string) (bool, error)
	CreateLogicalSlot(ctx context.Context, name string) (string, error)
	DropSlot(ctx context.Context, name string) error

	SubscriptionExists(ctx context.Context, name string) (bool, error)
	CreateSubscription(ctx context.Context, s postgres.Subscription) error
	DetachSubscription(ctx context.Context, name string) error
	DropSubscription(ctx context.Context, name string) error
}

// Connector opens an authenticated connection to database on target.
type Connector func(ctx context.Context, target *ConnectionTarget, database string, timeout time.Duration) (Database, error)

// Toolchain wraps the dump/restore client binaries.
type Toolchain interface {
	Dump(ctx context.Context, conn pgdump.Conn, schema, table, file string) error
	List(ctx context.Context, file string) ([]pgdump.Entry, error)
	Restore(ctx context.Context, conn pgdump.Conn, file, listFile string, jobs int) error
}

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// PasswordFunc reads the password once, without echo.
type PasswordFunc func() (string, error)

// Deps are the external collaborators of a run.
type Deps struct {
	Connect   Connector
	Tools     Toolchain
	Dial      DialFunc
	Password  PasswordFunc
	FreeBytes func(path string) (uint64, error) // optional
}

// PostgresConnector connects with pgx.
func PostgresConnector(ctx context.Context, t *ConnectionTarget, database string, timeout time.Duration) (Database, error) {
	c, err := postgres.Connect(ctx, postgres.Params{
		Host:           t.Host,
		Port:           t.Port,
		User:           t.User,
		Password:       t.Password,
		Database:       database,
		ConnectTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

var _ Database = (*postgres.Client)(nil)

package casework

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/HerbHall/creditdesk/pkg/platform"
)

// Store persists clients and disputes.
type Store struct {
	db *sql.DB
}

// NewStore runs the casework migrations and returns the store.
func NewStore(ctx context.Context, store platform.Store) (*Store, error) {
	if err := store.Migrate(ctx, "casework", migrations); err != nil {
		return nil, fmt.Errorf("casework migrations: %w", err)
	}
	return &Store{db: store.DB()}, nil
}

const clientColumns = `id, first_name, last_name, email, phone, credit_score, status, enforcement_stage, created_at, updated_at`

func (s *Store) InsertClient(ctx context.Context, c *Client) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO casework_clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.CreditScore,
		c.Status, c.EnforcementStage, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*Client, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM casework_clients WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	return c, err
}

func (s *Store) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM casework_clients ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	clients := []Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*Client, error) {
	var (
		c     Client
		score sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &score,
		&c.Status, &c.EnforcementStage, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan client: %w", err)
	}
	if score.Valid {
		v := int(score.Int64)
		c.CreditScore = &v
	}
	return &c, nil
}

const disputeColumns = `id, client_id, creditor_name, account_number, reason, description, amount, status, success_probability, created_at, updated_at`

func (s *Store) InsertDispute(ctx context.Context, d *Dispute) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO casework_disputes (`+disputeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ClientID, d.CreditorName, d.AccountNumber, d.Reason, d.Description,
		d.Amount, d.Status, d.SuccessProbability, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dispute: %w", err)
	}
	return nil
}

func (s *Store) GetDispute(ctx context.Context, id string) (*Dispute, error) {
	d, err := scanDispute(s.db.QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM casework_disputes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	return d, err
}

// ListDisputes returns all disputes, or only clientID's when it is non-empty.
func (s *Store) ListDisputes(ctx context.Context, clientID string) ([]Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM casework_disputes`
	var args []any
	if clientID != "" {
		query += ` WHERE client_id = ?`
		args = append(args, clientID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()

	disputes := []Dispute{}
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, *d)
	}
	return disputes, rows.Err()
}

func scanDispute(row rowScanner) (*Dispute, error) {
	var (
		d           Dispute
		amount      sql.NullFloat64
		probability sql.NullFloat64
	)
	err := row.Scan(&d.ID, &d.ClientID, &d.CreditorName, &d.AccountNumber, &d.Reason, &d.Description,
		&amount, &d.Status, &probability, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan dispute: %w", err)
	}
	if amount.Valid {
		d.Amount = &amount.Float64
	}
	if probability.Valid {
		d.SuccessProbability = &probability.Float64
	}
	return &d, nil
}

// Stats counts clients and disputes.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DisputesByStatus: map[string]int{}}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM casework_clients`, ClientActive,
	).Scan(&st.TotalClients, &st.ActiveClients)
	if err != nil {
		return nil, fmt.Errorf("count clients: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM casework_disputes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count disputes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan dispute count: %w", err)
		}
		st.DisputesByStatus[status] = n
		st.TotalDisputes += n
	}
	return st, rows.Err()
}

var migrations = []platform.Migration{
	{
		Version:     1,
		Description: "create casework tables",
		Up: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE IF NOT EXISTS casework_clients (
					id TEXT PRIMARY KEY,
					first_name TEXT NOT NULL,
					last_name TEXT NOT NULL,
					email TEXT NOT NULL,
					phone TEXT NOT NULL DEFAULT '',
					credit_score INTEGER,
					status TEXT NOT NULL,
					enforcement_stage TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS casework_disputes (
					id TEXT PRIMARY KEY,
					client_id TEXT NOT NULL REFERENCES casework_clients(id),
					creditor_name TEXT NOT NULL,
					account_number TEXT NOT NULL,
					reason TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					amount REAL,
					status TEXT NOT NULL,
					success_probability REAL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_casework_disputes_client ON casework_disputes(client_id)`,
			}
			for _, stmt := range stmts {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

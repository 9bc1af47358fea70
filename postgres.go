package tellergo

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	pgTruncateSQL = `
		TRUNCATE transactions, accounts, snapshots;
	`

	pgInsertSnapshotSQL = `
		INSERT INTO snapshots (version, saved_at)
		VALUES ($1, $2);
	`

	pgInsertAcctSQL = `
		INSERT INTO accounts (number, holder, typ, balance, pin_hash, interest_rate, locked, failed_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`

	pgInsertTxnSQL = `
		INSERT INTO transactions (id, acct_number, seq, at, kind, amount, counterparty, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`

	pgSelectSnapshotSQL = `
		SELECT version, saved_at
		FROM snapshots
		LIMIT 1;
	`

	pgSelectAcctsSQL = `
		SELECT number, holder, typ, balance, pin_hash, interest_rate, locked, failed_attempts
		FROM accounts
		ORDER BY number;
	`

	pgSelectTxnsSQL = `
		SELECT id, acct_number, at, kind, amount, counterparty, description
		FROM transactions
		ORDER BY acct_number, seq;
	`
)

// PostgresStore persists snapshots into the accounts and transactions tables.
// Every Save rewrites both tables inside one transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *zerolog.Logger
}

var (
	_ Store = (*PostgresStore)(nil)
)

func NewPostgresStore(connStr string, log *zerolog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	if err = pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}

	store := &PostgresStore{
		pool: pool,
		log:  log,
	}
	return store, err
}

func (pg *PostgresStore) Close() {
	pg.pool.Close()
}

func (pg *PostgresStore) Save(ctx context.Context, snap *Snapshot) error {
	conn, err := pg.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() {
		if rerr := tx.Rollback(ctx); rerr != nil && rerr != pgx.ErrTxClosed {
			pg.log.Err(rerr).Msg("snapshot rollback fail")
		}
	}()

	batch := &pgx.Batch{}
	batch.Queue(pgTruncateSQL)
	batch.Queue(pgInsertSnapshotSQL, snap.Version, snap.SavedAt)
	for _, a := range snap.Accounts {
		batch.Queue(pgInsertAcctSQL, a.Number, a.Holder, string(a.Type), a.Balance, a.PINHash, a.InterestRate, a.Locked, a.FailedAttempts)
		for i, t := range a.Transactions {
			batch.Queue(pgInsertTxnSQL, t.ID.Int64(), a.Number, i, t.Time, string(t.Kind), t.Amount, t.Counterparty, t.Description)
		}
	}

	btresults := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err = btresults.Exec(); err != nil {
			btresults.Close()
			return fmt.Errorf("snapshot batch statement %d: %w", i, err)
		}
	}
	if err = btresults.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (pg *PostgresStore) Load(ctx context.Context) (*Snapshot, error) {
	conn, err := pg.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	snap := &Snapshot{}
	row := tx.QueryRow(ctx, pgSelectSnapshotSQL)
	if err = row.Scan(&snap.Version, &snap.SavedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}

	rows, err := tx.Query(ctx, pgSelectAcctsSQL)
	if err != nil {
		return nil, err
	}
	byNumber := make(map[string]int)
	for rows.Next() {
		var (
			rec AccountRecord
			typ string
		)
		if err = rows.Scan(&rec.Number, &rec.Holder, &typ, &rec.Balance, &rec.PINHash, &rec.InterestRate, &rec.Locked, &rec.FailedAttempts); err != nil {
			rows.Close()
			return nil, err
		}
		rec.Type = AccountType(typ)
		byNumber[rec.Number] = len(snap.Accounts)
		snap.Accounts = append(snap.Accounts, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, pgSelectTxnsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id     int64
			number string
			kind   string
			amount decimal.Decimal
			t      Transaction
		)
		if err = rows.Scan(&id, &number, &t.Time, &kind, &amount, &t.Counterparty, &t.Description); err != nil {
			return nil, err
		}
		idx, ok := byNumber[number]
		if !ok {
			return nil, fmt.Errorf("transaction %d references unknown account %s", id, number)
		}
		t.ID = snowflake.ParseInt64(id)
		t.Kind = TxKind(kind)
		t.Amount = amount
		snap.Accounts[idx].Transactions = append(snap.Accounts[idx].Transactions, t)
	}
	return snap, rows.Err()
}

package tellergo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5"
)

// LocalHelper prepares a Postgres database for the snapshot store. It is used
// by the seeder and by tests.
type LocalHelper struct {
	Conn   *pgx.Conn
	SQLDir string
}

func NewLocalHelper(connStr, sqlDir string) (*LocalHelper, error) {
	conn, err := pgx.Connect(context.Background(), connStr)
	if err != nil {
		return nil, err
	}
	if sqlDir == "" {
		sqlDir = "testdata"
	}
	return &LocalHelper{
		Conn:   conn,
		SQLDir: sqlDir,
	}, nil
}

// InitDB creates the snapshot tables and returns a teardown func which drops
// them and closes the connection.
func (lh *LocalHelper) InitDB() (func(), error) {
	if err := lh.exec("init_db.sql"); err != nil {
		return nil, err
	}
	return lh.teardownDB(), nil
}

func (lh *LocalHelper) exec(name string) error {
	bits, err := os.ReadFile(filepath.Join(lh.SQLDir, name))
	if err != nil {
		return err
	}
	_, err = lh.Conn.Exec(context.Background(), string(bits))
	return err
}

func (lh *LocalHelper) teardownDB() func() {
	return func() {
		defer lh.Conn.Close(context.Background())

		if err := lh.exec("teardown_db.sql"); err != nil {
			fmt.Fprintf(os.Stderr, "DB cleanup exec teardown sql: %s", err.Error())
		}
	}
}

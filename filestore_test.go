package tellergo_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arhyth/tellergo"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file means no snapshot", func(tt *testing.T) {
		store := tellergo.NewFileStore(filepath.Join(tt.TempDir(), "bank_data.json"))
		_, err := store.Load(ctx)
		assert.ErrorIs(tt, err, tellergo.ErrNoSnapshot)
	})

	t.Run("round trips a snapshot", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		path := filepath.Join(tt.TempDir(), "nested", "bank_data.json")
		store := tellergo.NewFileStore(path)

		dir := newDirectory(tt)
		a := openAccount(tt, dir, "Savings", 1234, "100.10")
		b := openAccount(tt, dir, "Checking", 4321, "5")
		reqrd.NoError(dir.Transfer(a.Number(), b.Number(), amt("0.10")))
		_ = a.VerifyPIN(1)
		reqrd.NoError(store.Save(ctx, dir.Snapshot()))

		snap, err := store.Load(ctx)
		reqrd.NoError(err)
		restored := newDirectory(tt)
		reqrd.NoError(restored.Restore(snap))

		for _, orig := range []*tellergo.Account{a, b} {
			got, err := restored.Find(orig.Number())
			reqrd.NoError(err)
			as.Equal(orig.Holder(), got.Holder())
			as.Equal(orig.Type(), got.Type())
			as.True(orig.Balance().Equal(got.Balance()))
			as.True(orig.InterestRate().Equal(got.InterestRate()))
			as.Equal(orig.FailedAttempts(), got.FailedAttempts())

			want, have := orig.Transactions(), got.Transactions()
			reqrd.Len(have, len(want))
			for i := range want {
				as.Equal(want[i].ID, have[i].ID)
				as.Equal(want[i].Kind, have[i].Kind)
				as.Equal(want[i].Counterparty, have[i].Counterparty)
				as.Equal(want[i].Description, have[i].Description)
				as.True(want[i].Time.Equal(have[i].Time))
				as.True(want[i].Amount.Equal(have[i].Amount))
			}
		}
		ra, _ := restored.Find(a.Number())
		as.NoError(ra.VerifyPIN(1234))
	})

	t.Run("save overwrites and leaves no temp files", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		root := tt.TempDir()
		store := tellergo.NewFileStore(filepath.Join(root, "bank_data.json"))

		dir := newDirectory(tt)
		openAccount(tt, dir, "Savings", 1234, "1")
		reqrd.NoError(store.Save(ctx, dir.Snapshot()))
		openAccount(tt, dir, "Savings", 1234, "2")
		reqrd.NoError(store.Save(ctx, dir.Snapshot()))

		snap, err := store.Load(ctx)
		reqrd.NoError(err)
		as.Len(snap.Accounts, 2)

		entries, err := os.ReadDir(root)
		reqrd.NoError(err)
		as.Len(entries, 1)
	})

	t.Run("corrupt file is an error", func(tt *testing.T) {
		path := filepath.Join(tt.TempDir(), "bank_data.json")
		require.NoError(tt, os.WriteFile(path, []byte(`{"version":1,"accounts":[`), 0o644))
		_, err := tellergo.NewFileStore(path).Load(ctx)
		assert.Error(tt, err)
		assert.NotErrorIs(tt, err, tellergo.ErrNoSnapshot)
	})
}

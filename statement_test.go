package tellergo_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arhyth/tellergo"
)

func TestWriteStatement(t *testing.T) {
	t.Run("renders a PDF with transactions", func(tt *testing.T) {
		dir := newDirectory(tt)
		acct := openAccount(tt, dir, "Savings", 1234, "100")
		require.NoError(tt, acct.Deposit(amt("20")))

		var buf bytes.Buffer
		require.NoError(tt, tellergo.WriteStatement(&buf, acct.Info(), acct.Transactions(), fixedNow))
		assert.True(tt, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
		assert.Greater(tt, buf.Len(), 500)
	})

	t.Run("renders an empty log", func(tt *testing.T) {
		var buf bytes.Buffer
		info := tellergo.AccountInfo{Number: validNumber, Holder: "Ada", Type: tellergo.Checking}
		require.NoError(tt, tellergo.WriteStatement(&buf, info, nil, fixedNow))
		assert.True(tt, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
	})
}

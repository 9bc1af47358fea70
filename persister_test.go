package tellergo_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/arhyth/tellergo"
	"github.com/arhyth/tellergo/mocks"
)

func TestPersisterLoad(t *testing.T) {
	nooplog := zerolog.Nop()
	ctx := context.Background()

	t.Run("no snapshot starts empty without error", func(tt *testing.T) {
		ctrl := gomock.NewController(tt)
		store := mocks.NewMockStore(ctrl)
		store.EXPECT().Load(gomock.Any()).Return(nil, tellergo.ErrNoSnapshot)
		p := tellergo.NewPersister(store, tellergo.PersisterOpts{}, &nooplog)

		dir := newDirectory(tt)
		assert.NoError(tt, p.Load(ctx, dir))
		assert.Zero(tt, dir.Len())
	})

	t.Run("restores a stored snapshot", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		store := mocks.NewMockStore(ctrl)
		src := newDirectory(tt)
		acct := openAccount(tt, src, "Savings", 1234, "42")
		store.EXPECT().Load(gomock.Any()).Return(src.Snapshot(), nil)
		p := tellergo.NewPersister(store, tellergo.PersisterOpts{}, &nooplog)

		dir := newDirectory(tt)
		as.NoError(p.Load(ctx, dir))
		got, err := dir.Find(acct.Number())
		as.NoError(err)
		assertAmount(tt, "42", got.Balance())
	})

	t.Run("a store failure leaves the directory empty", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		store := mocks.NewMockStore(ctrl)
		boom := errors.New("unexpected EOF")
		store.EXPECT().Load(gomock.Any()).Return(nil, boom)
		p := tellergo.NewPersister(store, tellergo.PersisterOpts{}, &nooplog)

		dir := newDirectory(tt)
		openAccount(tt, dir, "Savings", 1234, "1")
		err := p.Load(ctx, dir)
		var perr tellergo.ErrPersistence
		as.ErrorAs(err, &perr)
		as.Equal("load", perr.Op)
		as.ErrorIs(err, boom)
		as.Zero(dir.Len())
	})

	t.Run("an invalid snapshot leaves the directory empty", func(tt *testing.T) {
		ctrl := gomock.NewController(tt)
		store := mocks.NewMockStore(ctrl)
		store.EXPECT().Load(gomock.Any()).Return(&tellergo.Snapshot{
			Version:  tellergo.SnapshotVersion,
			Accounts: []tellergo.AccountRecord{{Number: "ACC1", Type: tellergo.Savings, PINHash: "x"}},
		}, nil)
		p := tellergo.NewPersister(store, tellergo.PersisterOpts{}, &nooplog)

		dir := newDirectory(tt)
		assert.ErrorAs(tt, p.Load(ctx, dir), &tellergo.ErrPersistence{})
		assert.Zero(tt, dir.Len())
	})

	t.Run("load is bounded by the timeout", func(tt *testing.T) {
		ctrl := gomock.NewController(tt)
		store := mocks.NewMockStore(ctrl)
		store.EXPECT().
			Load(gomock.Any()).
			DoAndReturn(func(ctx context.Context) (*tellergo.Snapshot, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})
		p := tellergo.NewPersister(store, tellergo.PersisterOpts{Timeout: 10 * time.Millisecond}, &nooplog)

		err := p.Load(ctx, newDirectory(tt))
		assert.ErrorIs(tt, err, context.DeadlineExceeded)
	})
}

// orderedStore records saved snapshots. Its first Save waits for release.
type orderedStore struct {
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
	saved []*tellergo.Snapshot
}

func (s *orderedStore) Load(context.Context) (*tellergo.Snapshot, error) {
	return nil, tellergo.ErrNoSnapshot
}

func (s *orderedStore) Save(_ context.Context, snap *tellergo.Snapshot) error {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first {
		close(s.entered)
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, snap)
	return nil
}

func TestPersisterSave(t *testing.T) {
	nooplog := zerolog.Nop()
	ctx := context.Background()

	t.Run("writes the directory snapshot", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		store := mocks.NewMockStore(ctrl)
		dir := newDirectory(tt)
		openAccount(tt, dir, "Savings", 1234, "1")
		openAccount(tt, dir, "Checking", 1234, "2")
		store.EXPECT().
			Save(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, snap *tellergo.Snapshot) error {
				as.Equal(tellergo.SnapshotVersion, snap.Version)
				as.Len(snap.Accounts, 2)
				return nil
			})
		p := tellergo.NewPersister(store, tellergo.PersisterOpts{}, &nooplog)

		reqrd.NoError(p.Save(ctx, dir))
	})

	t.Run("concurrent saves land in snapshot order", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		store := &orderedStore{entered: make(chan struct{}), release: make(chan struct{})}
		p := tellergo.NewPersister(store, tellergo.PersisterOpts{Timeout: time.Minute}, &nooplog)
		dir := newDirectory(tt)
		acct := openAccount(tt, dir, "Savings", 1234, "100")

		var wg sync.WaitGroup
		wg.Add(2)
		reqrd.NoError(acct.Deposit(amt("1")))
		go func() {
			defer wg.Done()
			as.NoError(p.Save(ctx, dir))
		}()
		<-store.entered

		reqrd.NoError(acct.Deposit(amt("1000")))
		go func() {
			defer wg.Done()
			as.NoError(p.Save(ctx, dir))
		}()
		time.Sleep(20 * time.Millisecond)
		close(store.release)
		wg.Wait()

		reqrd.Len(store.saved, 2)
		last := store.saved[len(store.saved)-1]
		reqrd.Len(last.Accounts, 1)
		assertAmount(tt, "1101", last.Accounts[0].Balance)
	})

	t.Run("repeated failures open the breaker", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		store := mocks.NewMockStore(ctrl)
		store.EXPECT().
			Save(gomock.Any(), gomock.Any()).
			Return(errors.New("read-only file system")).
			Times(2)
		p := tellergo.NewPersister(store, tellergo.PersisterOpts{MaxFailures: 2, OpenFor: time.Minute}, &nooplog)
		dir := newDirectory(tt)

		for i := 0; i < 2; i++ {
			err := p.Save(ctx, dir)
			var perr tellergo.ErrPersistence
			as.ErrorAs(err, &perr)
			as.Equal("save", perr.Op)
		}

		// store is not called while open
		err := p.Save(ctx, dir)
		as.ErrorIs(err, gobreaker.ErrOpenState)
	})
}

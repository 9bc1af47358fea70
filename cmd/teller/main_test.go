package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type blockingShell struct {
	release chan struct{}
}

func (b blockingShell) Run() error {
	<-b.release
	return nil
}

type exitShell struct {
	err error
}

func (e exitShell) Run() error {
	return e.err
}

func TestRun(t *testing.T) {
	t.Run("saves once when the shell exits", func(tt *testing.T) {
		as := assert.New(tt)
		saves := 0
		err := run(context.Background(), exitShell{}, func() error {
			saves++
			return nil
		})
		as.NoError(err)
		as.Equal(1, saves)
	})

	t.Run("returns the shell error after saving", func(tt *testing.T) {
		as := assert.New(tt)
		boom := errors.New("read /dev/stdin: input/output error")
		saves := 0
		err := run(context.Background(), exitShell{err: boom}, func() error {
			saves++
			return nil
		})
		as.ErrorIs(err, boom)
		as.Equal(1, saves)
	})

	t.Run("saves on interrupt while the shell is blocked", func(tt *testing.T) {
		as := assert.New(tt)
		shell := blockingShell{release: make(chan struct{})}
		defer close(shell.release)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		saves := 0
		err := run(ctx, shell, func() error {
			saves++
			return nil
		})
		as.ErrorIs(err, context.Canceled)
		as.Equal(1, saves)
	})

	t.Run("a failed save does not change the result", func(tt *testing.T) {
		err := run(context.Background(), exitShell{}, func() error {
			return errors.New("disk full")
		})
		assert.NoError(tt, err)
	})
}

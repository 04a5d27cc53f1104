package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	logx "fleetbot/pkg/logx"
)

func TestSQLiteStoreSubscribers(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "subs.db")

	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	subs := NewSubscribers(st, logx.Nop())

	if got := subs.Load(ctx); len(got) != 0 {
		t.Fatalf("fresh db Load = %v", got)
	}
	for _, id := range []int64{10, 20, 10} {
		if _, err := subs.Subscribe(ctx, id); err != nil {
			t.Fatalf("Subscribe(%d): %v", id, err)
		}
	}
	if removed, err := subs.Unsubscribe(ctx, 30); err != nil || removed {
		t.Fatalf("Unsubscribe(30) = %v, %v", removed, err)
	}
	if got := subs.Load(ctx); !reflect.DeepEqual(got, []int64{10, 20}) {
		t.Fatalf("Load = %v", got)
	}
	if err := subs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: the set survives restarts.
	st2, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	if got := st2.Load(ctx); !reflect.DeepEqual(got, []int64{10, 20}) {
		t.Fatalf("Load after reopen = %v", got)
	}
}

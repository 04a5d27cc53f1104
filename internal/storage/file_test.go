package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	logx "fleetbot/pkg/logx"
)

func openTestFile(t *testing.T) (*Subscribers, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "data", "subscribers.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewSubscribers(st, logx.Nop()), path
}

func sorted(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestFileStoreInitializesEmptyDocument(t *testing.T) {
	_, path := openTestFile(t)

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("document not created: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	subs, ok := doc["subscribers"].([]any)
	if !ok || len(subs) != 0 {
		t.Fatalf("unexpected document: %s", b)
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	subs, _ := openTestFile(t)

	added, err := subs.Subscribe(ctx, 42)
	if err != nil || !added {
		t.Fatalf("first Subscribe = %v, %v", added, err)
	}
	for i := 0; i < 3; i++ {
		added, err = subs.Subscribe(ctx, 42)
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		if added {
			t.Fatal("repeated Subscribe must report already subscribed")
		}
	}

	if got := subs.Load(ctx); !reflect.DeepEqual(got, []int64{42}) {
		t.Fatalf("Load = %v, want [42]", got)
	}
}

func TestUnsubscribeAbsentLeavesSetUnchanged(t *testing.T) {
	ctx := context.Background()
	subs, path := openTestFile(t)

	if err := subs.Save(ctx, []int64{1, 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, _ := os.Stat(path)

	removed, err := subs.Unsubscribe(ctx, 99)
	if err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if removed {
		t.Fatal("Unsubscribe of a non-member must report not subscribed")
	}
	if got := subs.Load(ctx); !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Fatalf("Load = %v", got)
	}
	after, _ := os.Stat(path)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatal("no-op unsubscribe must not rewrite the document")
	}

	removed, err = subs.Unsubscribe(ctx, 1)
	if err != nil || !removed {
		t.Fatalf("Unsubscribe(1) = %v, %v", removed, err)
	}
	if got := subs.Load(ctx); !reflect.DeepEqual(got, []int64{2}) {
		t.Fatalf("Load = %v, want [2]", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	subs, path := openTestFile(t)

	in := []int64{-1002353039022, 7, 123456789}
	if err := subs.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := subs.Load(ctx); !reflect.DeepEqual(sorted(got), sorted(in)) {
		t.Fatalf("Load = %v, want %v", got, in)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestLoadFailsSoftOnCorruptDocument(t *testing.T) {
	ctx := context.Background()
	subs, path := openTestFile(t)

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := subs.Load(ctx); len(got) != 0 {
		t.Fatalf("Load = %v, want empty", got)
	}

	// Mutations still work and repair the document.
	if _, err := subs.Subscribe(ctx, 5); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := subs.Load(ctx); !reflect.DeepEqual(got, []int64{5}) {
		t.Fatalf("Load = %v", got)
	}
}

func TestLoadSeesExternalEdits(t *testing.T) {
	ctx := context.Background()
	subs, path := openTestFile(t)

	if err := os.WriteFile(path, []byte(`{"subscribers":[3,3,4]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := subs.Load(ctx); !reflect.DeepEqual(got, []int64{3, 4}) {
		t.Fatalf("Load = %v, want [3 4]", got)
	}
}

func TestSaveFailureKeepsPreviousDocument(t *testing.T) {
	ctx := context.Background()
	subs, path := openTestFile(t)

	if err := subs.Save(ctx, []int64{1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// A directory squatting on the temp path makes the write fail.
	if err := os.Mkdir(path+".tmp", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := subs.Save(ctx, []int64{1, 2}); err == nil {
		t.Fatal("expected save error")
	}
	if got := subs.Load(ctx); !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("Load = %v, want previous [1]", got)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"chatclient/internal/app/user"
)

// exerciseKV runs the shared contract checks against kv.
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, err := kv.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) err = %v; want ErrNotFound", err)
	}

	if err := kv.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}

	got, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("Get = %q; want v2", got)
	}

	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
	if _, err := kv.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete err = %v", err)
	}
}

// exerciseUserRoundTrip persists a user and reloads it.
func exerciseUserRoundTrip(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := LoadUser(ctx, kv); err != nil || ok {
		t.Fatalf("LoadUser on empty store = ok:%v err:%v", ok, err)
	}

	want := user.User{ID: "3f6c", Name: "Alice", Avatar: "https://cdn.example/a.png", Online: true}
	if err := SaveUser(ctx, kv, want); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	got, ok, err := LoadUser(ctx, kv)
	if err != nil || !ok {
		t.Fatalf("LoadUser = ok:%v err:%v", ok, err)
	}
	if got != want {
		t.Fatalf("round trip = %+v; want %+v", got, want)
	}

	if err := ForgetUser(ctx, kv); err != nil {
		t.Fatalf("ForgetUser: %v", err)
	}
	if _, ok, _ := LoadUser(ctx, kv); ok {
		t.Fatalf("identity still present after ForgetUser")
	}
}

func TestMemoryStore(t *testing.T) {
	kv := NewMemory()
	exerciseKV(t, kv)
	exerciseUserRoundTrip(t, kv)
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()
	_ = kv.Set(ctx, "k", []byte("abc"))

	got, _ := kv.Get(ctx, "k")
	got[0] = 'X'

	again, _ := kv.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("stored value was mutated through Get: %q", again)
	}
}

func TestPebbleStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pebble")

	kv, err := OpenPebble(dir)
	if err != nil {
		t.Fatalf("OpenPebble: %v", err)
	}
	exerciseKV(t, kv)
	exerciseUserRoundTrip(t, kv)

	// identity survives reopening the directory
	want := user.User{ID: "id-1", Name: "Bob", Online: true}
	if err := SaveUser(context.Background(), kv, want); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenPebble(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, ok, err := LoadUser(context.Background(), reopened)
	if err != nil || !ok || got != want {
		t.Fatalf("after reopen got %+v ok:%v err:%v", got, ok, err)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	kv, err := OpenPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer kv.Close()

	_ = ForgetUser(context.Background(), kv)
	exerciseKV(t, kv)
	exerciseUserRoundTrip(t, kv)
}

func TestLoadUserTreatsNullAsAbsent(t *testing.T) {
	kv := NewMemory()
	_ = kv.Set(context.Background(), UserKey, []byte("null"))

	if _, ok, err := LoadUser(context.Background(), kv); ok || err != nil {
		t.Fatalf("null record should read as absent; ok:%v err:%v", ok, err)
	}
}

func TestLoadUserRejectsCorruptRecord(t *testing.T) {
	kv := NewMemory()
	_ = kv.Set(context.Background(), UserKey, []byte("{not json"))

	if _, _, err := LoadUser(context.Background(), kv); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "etcd"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}

	kv, err := Open(context.Background(), Config{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := kv.(*Memory); !ok {
		t.Fatalf("expected *Memory; got %T", kv)
	}
}

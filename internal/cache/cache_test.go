package cache

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(NoExpiration, 0)

	if err := c.Set("b", []byte("two"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = c.Set("a", []byte("one"), 0)

	val, ok := c.Get("a")
	if !ok || string(val) != "one" {
		t.Errorf("expected one, got %q (found=%v)", val, ok)
	}

	// Returned slices are copies
	val[0] = 'X'
	if again, _ := c.Get("a"); string(again) != "one" {
		t.Errorf("expected stored value unchanged, got %q", again)
	}

	keys, _ := c.Keys()
	if !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Errorf("expected [a b], got %v", keys)
	}

	_ = c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be deleted")
	}

	_ = c.Clear()
	if keys, _ := c.Keys(); len(keys) != 0 {
		t.Errorf("expected empty cache, got %v", keys)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(NoExpiration, 0)
	_ = c.Set("short", []byte("x"), 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("short"); ok {
		t.Error("expected entry to expire")
	}
}

func TestDiskCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ckpt")
	c := NewDiskCache(dir, 0)

	if keys, err := c.Keys(); err != nil || len(keys) != 0 {
		t.Errorf("expected no keys for missing dir, got %v (%v)", keys, err)
	}

	if err := c.Set("checkpoint:job/1", []byte(`{"x":1}`), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = c.Set("checkpoint:job/2", []byte(`{"x":2}`), 0)

	val, ok := c.Get("checkpoint:job/1")
	if !ok || string(val) != `{"x":1}` {
		t.Errorf("expected stored value, got %q (found=%v)", val, ok)
	}

	keys, err := c.Keys()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"checkpoint:job/1", "checkpoint:job/2"}) {
		t.Errorf("expected both keys, got %v", keys)
	}

	// No temp files are left behind
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("unexpected temp file %s", e.Name())
		}
	}

	if err := c.Delete("checkpoint:job/1"); err != nil {
		t.Errorf("delete: %v", err)
	}
	if err := c.Delete("checkpoint:job/1"); err != nil {
		t.Errorf("expected deleting a missing key to succeed, got %v", err)
	}
	if _, ok := c.Get("checkpoint:job/1"); ok {
		t.Error("expected key to be gone")
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), 0)
	_ = c.Set("k", []byte("v"), 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to expire")
	}
	if keys, _ := c.Keys(); len(keys) != 0 {
		t.Errorf("expected expired key to be hidden, got %v", keys)
	}
}

func TestDiskCache_SetFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := NewDiskCache(file, 0)
	if err := c.Set("k", []byte("v"), 0); err == nil {
		t.Error("expected error when cache dir is a file")
	}
}

func TestLayeredCache(t *testing.T) {
	dir := t.TempDir()
	memory := NewMemoryCache(NoExpiration, 0)
	disk := NewDiskCache(dir, 0)
	c := NewLayeredCache(memory, disk)

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := memory.Get("k"); !ok {
		t.Error("expected value in memory layer")
	}
	if _, ok := disk.Get("k"); !ok {
		t.Error("expected value in disk layer")
	}

	// A fresh memory layer is filled from disk on read
	fresh := NewMemoryCache(NoExpiration, 0)
	c2 := NewLayeredCache(fresh, NewDiskCache(dir, 0))
	if val, ok := c2.Get("k"); !ok || string(val) != "v" {
		t.Errorf("expected disk hit, got %q (found=%v)", val, ok)
	}
	if _, ok := fresh.Get("k"); !ok {
		t.Error("expected disk hit to be promoted to memory")
	}

	keys, _ := c2.Keys()
	if !reflect.DeepEqual(keys, []string{"k"}) {
		t.Errorf("expected [k], got %v", keys)
	}

	_ = c2.Delete("k")
	if _, ok := c2.Get("k"); ok {
		t.Error("expected key deleted from both layers")
	}
}

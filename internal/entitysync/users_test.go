package entitysync_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	. "github.com/brightfield-crm/syncengine/internal/entitysync"
	"github.com/brightfield-crm/syncengine/internal/synctest"
)

func TestSyncUpUsersUploadsChangedAvatar(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	objects := synctest.NewObjectStore()
	deps := newDeps(synctest.NewClock(start), store, remote)

	avatar := []byte("normalized-jpeg-bytes")
	store.PutPending(entitykind.Users, map[string]any{
		"id":                  "u1",
		"name":                "Pat",
		"avatarPendingBase64": base64.StdEncoding.EncodeToString(avatar),
	}, start)

	if err := SyncUpUsers(context.Background(), deps, objects); err != nil {
		t.Fatalf("SyncUpUsers: %v", err)
	}

	uploaded, ok := objects.Get("u1.jpg")
	if !ok || string(uploaded) != string(avatar) {
		t.Fatalf("expected avatar uploaded to u1.jpg, got ok=%v", ok)
	}

	remoteRow, ok := remote.Get(entitykind.Users, "u1")
	if !ok {
		t.Fatal("expected user pushed to remote")
	}
	sum := sha256.Sum256(avatar)
	if remoteRow.Fields["avatarHash"] != hex.EncodeToString(sum[:]) {
		t.Errorf("avatarHash = %v, want sha256 of the uploaded bytes", remoteRow.Fields["avatarHash"])
	}
	if remoteRow.Fields["avatarPath"] != "u1.jpg" {
		t.Errorf("avatarPath = %v, want u1.jpg", remoteRow.Fields["avatarPath"])
	}
	if _, present := remoteRow.Fields["avatarPendingBase64"]; present {
		t.Error("staged avatar bytes must never reach the remote table")
	}
	if got := store.SyncState(entitykind.Users, "u1"); got != "synced" {
		t.Errorf("sync state = %q, want synced", got)
	}
}

func TestSyncUpUsersLeavesRowPendingWhenUploadFails(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	objects := synctest.NewObjectStore()
	objects.UploadErr = errors.New("object storage unavailable")
	deps := newDeps(synctest.NewClock(start), store, remote)

	store.PutPending(entitykind.Users, map[string]any{
		"id":                  "u1",
		"name":                "Pat",
		"avatarPendingBase64": base64.StdEncoding.EncodeToString([]byte("bytes")),
	}, start)

	if err := SyncUpUsers(context.Background(), deps, objects); err != nil {
		t.Fatalf("SyncUpUsers: %v", err)
	}

	// The profile push is aborted rather than pushed without its avatar,
	// and the row stays pending for the next pass.
	if _, ok := remote.Get(entitykind.Users, "u1"); ok {
		t.Error("profile must not be pushed when its avatar upload failed")
	}
	if got := store.SyncState(entitykind.Users, "u1"); got != "pending" {
		t.Errorf("sync state = %q, want still pending", got)
	}
}

func TestSyncUpUsersSkipsUploadWhenHashUnchanged(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	objects := synctest.NewObjectStore()
	objects.UploadErr = errors.New("should never be called")
	deps := newDeps(synctest.NewClock(start), store, remote)

	avatar := []byte("same-bytes")
	sum := sha256.Sum256(avatar)
	store.PutPending(entitykind.Users, map[string]any{
		"id":                  "u1",
		"name":                "Pat",
		"avatarHash":          hex.EncodeToString(sum[:]),
		"avatarPendingBase64": base64.StdEncoding.EncodeToString(avatar),
	}, start)

	if err := SyncUpUsers(context.Background(), deps, objects); err != nil {
		t.Fatalf("SyncUpUsers: %v", err)
	}
	if got := store.SyncState(entitykind.Users, "u1"); got != "synced" {
		t.Errorf("sync state = %q, want synced without re-uploading", got)
	}
}

func TestSyncUpUsersPushesWithoutAvatar(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	deps := newDeps(synctest.NewClock(start), store, remote)

	store.PutPending(entitykind.Users, map[string]any{"id": "u1", "name": "No Avatar"}, start)

	if err := SyncUpUsers(context.Background(), deps, synctest.NewObjectStore()); err != nil {
		t.Fatalf("SyncUpUsers: %v", err)
	}
	if _, ok := remote.Get(entitykind.Users, "u1"); !ok {
		t.Error("expected plain profile push with no avatar staged")
	}
}

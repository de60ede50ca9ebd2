package entitysync

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/ports"
	"github.com/brightfield-crm/syncengine/internal/usererror"
)

// UsersSpec describes the user entity for syncDown; syncUp is handled by
// SyncUpUsers below, never the generic batch path.
var UsersSpec = Spec{Kind: entitykind.Users}

// avatarPendingField holds base64-encoded normalized avatar bytes staged
// by the UI layer on a local profile edit; image normalization happens
// upstream, so the engine only ever sees already-normalized bytes here.
const avatarPendingField = "avatarPendingBase64"

// SyncUpUsers pushes dirty user rows one at a time, never batched,
// because the push is entangled with binary avatar upload: a
// changed avatar is hashed, uploaded, and only then does the UPSERT body
// carry the new {avatarPath, avatarHash}.
func SyncUpUsers(ctx context.Context, deps *Deps, objects ports.ObjectStore) error {
	dirty, err := deps.Store.FetchDirty(ctx, UsersSpec.Kind)
	if err != nil {
		return fmt.Errorf("syncUp users: fetch dirty: %w", err)
	}
	if len(dirty) == 0 {
		return nil
	}

	ids := make([]string, 0, len(dirty))
	for _, r := range dirty {
		if id := getString(r.Fields, "id"); id != "" {
			ids = append(ids, id)
		}
	}
	deps.Resolver.Mark(UsersSpec.Kind, ids)
	defer deps.Resolver.Clear(UsersSpec.Kind)

	now := deps.now()
	for _, r := range dirty {
		id := getString(r.Fields, "id")
		fields := cloneScalars(r.Fields)

		if avatarB64 := getString(fields, avatarPendingField); avatarB64 != "" {
			data, decodeErr := base64.StdEncoding.DecodeString(avatarB64)
			if decodeErr != nil {
				deps.Log.Warn("syncUp users: invalid pending avatar, dropping", "id", id, "err", decodeErr)
				delete(fields, avatarPendingField)
			} else {
				sum := sha256.Sum256(data)
				hash := hex.EncodeToString(sum[:])
				if hash != getString(fields, "avatarHash") {
					key := id + ".jpg"
					if uploadErr := objects.Upload(ctx, key, data, "image/jpeg", time.Hour); uploadErr != nil {
						// Abort this row's push entirely; do not wipe the
						// server side, and leave the row pending for the
						// next sync pass to retry.
						deps.Log.Warn("syncUp users: avatar upload failed, leaving row pending", "id", id, "err", uploadErr)
						continue
					}
					fields["avatarPath"] = key
					fields["avatarHash"] = hash
				}
				delete(fields, avatarPendingField)
			}
		}

		row := ports.Row{Kind: UsersSpec.Kind, Fields: stripMeta(fields)}
		delete(row.Fields, avatarPendingField)
		if pushErr := deps.Remote.Upsert(ctx, UsersSpec.Kind, []ports.Row{row}); pushErr != nil {
			msg := usererror.Classify(pushErr, string(UsersSpec.Kind))
			setMetaFailed(fields, msg)
			if err := deps.Store.Upsert(ctx, UsersSpec.Kind, ports.Row{Kind: UsersSpec.Kind, Fields: fields}); err != nil {
				return fmt.Errorf("syncUp users: mark failed: %w", err)
			}
			deps.Log.Warn("syncUp users: push failed", "id", id, "err", pushErr)
			continue
		}

		setMetaSynced(fields, getTime(fields, "updatedAt"), now)
		if err := deps.Store.Upsert(ctx, UsersSpec.Kind, ports.Row{Kind: UsersSpec.Kind, Fields: fields}); err != nil {
			return fmt.Errorf("syncUp users: mark synced: %w", err)
		}
	}
	return nil
}

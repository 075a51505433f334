package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

// Create ssh_keys and lfs_tokens BaseCollections backing the SSH transport's
// publickey authentication and Git LFS bearer-token handoff.
func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		sshKeys := core.NewBaseCollection("ssh_keys")
		sshKeys.Fields.Add(&core.RelationField{
			Name:         "owner_user",
			Required:     true,
			CollectionId: users.Id,
			MaxSelect:    1,
		})
		sshKeys.Fields.Add(&core.TextField{Name: "encoded_key", Required: true})
		sshKeys.Fields.Add(&core.AutodateField{Name: "created", OnCreate: true})

		ownerOrSuperuser := "owner_user = @request.auth.id || @request.auth.collectionName = '_superusers'"
		sshKeys.ListRule = types.Pointer(ownerOrSuperuser)
		sshKeys.ViewRule = types.Pointer(ownerOrSuperuser)
		sshKeys.CreateRule = types.Pointer("owner_user = @request.auth.id")
		sshKeys.DeleteRule = types.Pointer(ownerOrSuperuser)
		sshKeys.UpdateRule = nil

		sshKeys.Indexes = []string{
			"CREATE UNIQUE INDEX idx_ssh_keys_encoded_key ON ssh_keys (encoded_key)",
			"CREATE INDEX idx_ssh_keys_owner_user ON ssh_keys (owner_user)",
		}

		if err := app.Save(sshKeys); err != nil {
			return err
		}

		lfsTokens := core.NewBaseCollection("lfs_tokens")
		lfsTokens.Fields.Add(&core.RelationField{
			Name:         "user_id",
			Required:     true,
			CollectionId: users.Id,
			MaxSelect:    1,
		})
		lfsTokens.Fields.Add(&core.TextField{Name: "token", Required: true})
		lfsTokens.Fields.Add(&core.DateField{Name: "expires", Required: true})
		lfsTokens.Fields.Add(&core.AutodateField{Name: "created", OnCreate: true})

		// Tokens are minted and checked by the backend only; no client access.
		lfsTokens.ListRule = nil
		lfsTokens.ViewRule = nil
		lfsTokens.CreateRule = nil
		lfsTokens.UpdateRule = nil
		lfsTokens.DeleteRule = nil

		lfsTokens.Indexes = []string{
			"CREATE UNIQUE INDEX idx_lfs_tokens_token ON lfs_tokens (token)",
			"CREATE INDEX idx_lfs_tokens_expires ON lfs_tokens (expires)",
		}

		return app.Save(lfsTokens)
	}, func(app core.App) error {
		for _, name := range []string{"lfs_tokens", "ssh_keys"} {
			col, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				continue
			}
			if err := app.Delete(col); err != nil {
				return err
			}
		}
		return nil
	})
}

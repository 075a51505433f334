package migrations

import (
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"github.com/conduit-vcs/conduit/internal/settings"
)

// Seeds the default lfs/token settings group in app_settings: the TTL
// (seconds) granted to a minted LFS bearer token. Insert-if-not-exists, so
// an operator's prior override survives re-running migrations.
func init() {
	m.Register(func(app core.App) error {
		_, err := app.FindFirstRecordByFilter(
			"app_settings",
			"module = {:module} && key = {:key}",
			dbx.Params{"module": "lfs", "key": "token"},
		)
		if err == nil {
			return nil
		}
		return settings.SetGroup(app, "lfs", "token", map[string]any{
			"ttlSeconds": 86400,
		})
	}, func(app core.App) error {
		return nil
	})
}

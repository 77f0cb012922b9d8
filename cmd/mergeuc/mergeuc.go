// Package mergeuc provides the merge-uc command
package mergeuc

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/datastore/leporid"
	"github.com/usagipass/migration-tools/internal/migration"
	"github.com/usagipass/migration-tools/internal/runner"
)

// Command creates and returns the merge-uc command
func Command(env *runner.Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge-uc",
		Short: "Merge the legacy UC store into Leporid",
		Long: `Copies users and images of the legacy UC store into Leporid. Images without
an uploader become public images of the admin account.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), env)
		},
	}

	setupFlags(cmd)

	return cmd
}

func setupFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "", "Legacy UC store descriptor")
	cmd.Flags().String("target", "", "Leporid store descriptor")
	cmd.Flags().String("admin-user-id", "", "Leporid user id that owns images without uploader")
	cmd.Flags().Bool("skip-users", false, "Do not sync UC users into Leporid")
}

func run(ctx context.Context, env *runner.Env) error {
	settings := env.Settings
	stores, err := settings.ValidateMergeUC()
	if err != nil {
		return err
	}

	return env.Run(ctx, "merge-uc", func(ctx context.Context, opts migration.RunOptions) (*migration.Report, error) {
		dbs, err := env.OpenStores(ctx,
			database.Target{Name: "source", Descriptor: stores.Source},
			database.Target{Name: "target", Descriptor: stores.Target},
		)
		if err != nil {
			return nil, err
		}
		defer database.CloseAll(dbs...)
		source, target := dbs[0], dbs[1]

		if err := env.AutoMigrate("target", target, leporid.AutoMigrate); err != nil {
			return nil, err
		}

		return migration.RunMergeUC(ctx, source, target, migration.MergeUCConfig{
			AdminUserID: settings.AdminUserID,
			SkipUsers:   settings.SkipUsers,
		}, opts)
	})
}

// Package mergeup provides the merge-up command
package mergeup

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/datastore/leporid"
	"github.com/usagipass/migration-tools/internal/datastore/usagipass"
	"github.com/usagipass/migration-tools/internal/migration"
	"github.com/usagipass/migration-tools/internal/runner"
)

// Command creates and returns the merge-up command
func Command(env *runner.Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge-up",
		Short: "Merge the legacy UP store into Leporid and Usagipass",
		Long: `Creates a Leporid account per legacy UP user from its preferred server,
links third-party bindings, copies server accounts, ratings and preferences into
Usagipass, then migrates images that have an uploader.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), env)
		},
	}

	setupFlags(cmd)

	return cmd
}

func setupFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "", "Legacy UP store descriptor")
	cmd.Flags().String("leporid", "", "Leporid store descriptor")
	cmd.Flags().String("usagipass", "", "Usagipass store descriptor")
}

func run(ctx context.Context, env *runner.Env) error {
	stores, err := env.Settings.ValidateMergeUp()
	if err != nil {
		return err
	}

	return env.Run(ctx, "merge-up", func(ctx context.Context, opts migration.RunOptions) (*migration.Report, error) {
		dbs, err := env.OpenStores(ctx,
			database.Target{Name: "source", Descriptor: stores.Source},
			database.Target{Name: "leporid", Descriptor: stores.Leporid},
			database.Target{Name: "usagipass", Descriptor: stores.Usagipass},
		)
		if err != nil {
			return nil, err
		}
		defer database.CloseAll(dbs...)

		if err := env.AutoMigrate("leporid", dbs[1], leporid.AutoMigrate); err != nil {
			return nil, err
		}
		if err := env.AutoMigrate("usagipass", dbs[2], usagipass.AutoMigrate); err != nil {
			return nil, err
		}

		return migration.RunMergeUp(ctx, migration.UPStores{
			Source:    dbs[0],
			Leporid:   dbs[1],
			Usagipass: dbs[2],
		}, opts)
	})
}

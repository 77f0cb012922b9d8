// Package copyimg provides the copy-img command
package copyimg

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/imagecopy"
	"github.com/usagipass/migration-tools/internal/migration"
	"github.com/usagipass/migration-tools/internal/runner"
)

// Command creates and returns the copy-img command
func Command(env *runner.Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy-img",
		Short: "Copy image files of Leporid images between directories",
		Long:  `Copies <id>.webp for every Leporid image from --source-dir to --target-dir.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), env, afero.NewOsFs())
		},
	}

	setupFlags(cmd)

	return cmd
}

func setupFlags(cmd *cobra.Command) {
	cmd.Flags().String("leporid", "", "Leporid store descriptor")
	cmd.Flags().String("source-dir", "", "Directory holding the image files")
	cmd.Flags().String("target-dir", "", "Directory to copy the image files to")
	cmd.Flags().Bool("overwrite", false, "Replace files that already exist in the target directory")
}

func run(ctx context.Context, env *runner.Env, fs afero.Fs) error {
	settings := env.Settings
	desc, err := settings.ValidateCopyImage()
	if err != nil {
		return err
	}

	return env.Run(ctx, "copy-img", func(ctx context.Context, opts migration.RunOptions) (*migration.Report, error) {
		dbs, err := env.OpenStores(ctx, database.Target{Name: "leporid", Descriptor: desc})
		if err != nil {
			return nil, err
		}
		defer database.CloseAll(dbs...)

		report := migration.NewReport("copy-img", opts.DryRun, opts.Now())
		stats, err := imagecopy.New(dbs[0], fs, env.Logger("imagecopy")).Run(ctx, imagecopy.Config{
			SourceDir: settings.SourceDir,
			TargetDir: settings.TargetDir,
			Overwrite: settings.Overwrite,
			BatchSize: opts.BatchSize,
			DryRun:    opts.DryRun,
		})
		report.Extra = stats.Map()
		report.Finish(opts.Now(), err)
		return report, err
	})
}

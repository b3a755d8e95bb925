package cli

import (
	"context"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kolpa/bakare/internal/codec"
	"github.com/kolpa/bakare/internal/config"
	"github.com/kolpa/bakare/internal/fs"
	"github.com/kolpa/bakare/internal/repository"
)

// WeightCmd reports the repository's total stored data size in bytes.
func WeightCmd(fsys fs.FS, cfg config.Config, env []string, log *zap.Logger) *Command {
	flags := flag.NewFlagSet("weight", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "weight",
		Short: "Print the repository's total data size in bytes",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			c, err := codec.New(cfg.IndexSecret(env), cfg.Compress)
			if err != nil {
				return err
			}

			repo, err := repository.Open(fsys, cfg.Repository, repository.Options{
				Log:         log,
				Codec:       c,
				LockTimeout: cfg.LockTimeout,
			})
			if err != nil {
				return err
			}

			weight, err := repo.DataWeight()
			if err != nil {
				return err
			}

			o.Printf("%d\n", weight)

			return nil
		},
	}
}

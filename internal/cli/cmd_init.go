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

// InitCmd creates a new, empty repository at cfg.Repository.
func InitCmd(fsys fs.FS, cfg config.Config, env []string, log *zap.Logger) *Command {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "init",
		Short: "Create a new, empty repository",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			c, err := codec.New(cfg.IndexSecret(env), cfg.Compress)
			if err != nil {
				return err
			}

			_, err = repository.Init(fsys, cfg.Repository, repository.Options{
				Log:         log,
				Codec:       c,
				LockTimeout: cfg.LockTimeout,
			})
			if err != nil {
				return err
			}

			o.Printf("initialized repository at %s\n", cfg.Repository)

			return nil
		},
	}
}

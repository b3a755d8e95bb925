package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kolpa/bakare/internal/codec"
	"github.com/kolpa/bakare/internal/config"
	"github.com/kolpa/bakare/internal/fs"
	"github.com/kolpa/bakare/internal/repository"
	"github.com/kolpa/bakare/internal/restoreengine"
)

// ErrRestoreMissingTarget is returned when "bakare restore" is invoked
// without a target directory argument.
var ErrRestoreMissingTarget = errors.New("restore: missing target directory argument")

// RestoreCmd restores every item cfg.Repository tracks as newest onto a
// target directory.
func RestoreCmd(fsys fs.FS, cfg config.Config, env []string, log *zap.Logger) *Command {
	flags := flag.NewFlagSet("restore", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "restore <target>",
		Short: "Restore the repository's newest revisions onto a directory",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return ErrRestoreMissingTarget
			}

			target := args[0]

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

			engine, err := restoreengine.New(fsys, repo, log, target)
			if err != nil {
				return err
			}

			err = engine.RestoreAll()
			if err != nil {
				return err
			}

			o.Printf("restored %s into %s\n", cfg.Repository, target)

			return nil
		},
	}
}

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
)

// ErrRepositoryCorrupted is returned when verify finds one or more index
// entries whose object is missing on disk.
var ErrRepositoryCorrupted = errors.New("verify: repository has missing objects")

// VerifyCmd checks that the object behind each source path's newest item
// is still present on disk.
func VerifyCmd(fsys fs.FS, cfg config.Config, env []string, log *zap.Logger) *Command {
	flags := flag.NewFlagSet("verify", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "verify",
		Short: "Check the repository for missing objects",
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

			problems := repo.Verify()
			if len(problems) == 0 {
				o.Println("repository ok")

				return nil
			}

			for _, p := range problems {
				o.ErrPrintln(p)
			}

			return ErrRepositoryCorrupted
		},
	}
}

package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kolpa/bakare/internal/backupengine"
	"github.com/kolpa/bakare/internal/codec"
	"github.com/kolpa/bakare/internal/config"
	"github.com/kolpa/bakare/internal/fs"
	"github.com/kolpa/bakare/internal/repository"
	"github.com/kolpa/bakare/internal/walker"
)

// ErrBackupMissingSource is returned when "bakare backup" is invoked
// without a source directory argument.
var ErrBackupMissingSource = errors.New("backup: missing source directory argument")

// BackupCmd stores every regular file under a source directory into
// cfg.Repository.
func BackupCmd(fsys fs.FS, cfg config.Config, env []string, log *zap.Logger) *Command {
	flags := flag.NewFlagSet("backup", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "backup <source>",
		Short: "Back up a directory into the repository",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return ErrBackupMissingSource
			}

			source := args[0]

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

			engine := backupengine.New(repo, walker.New(fsys), log)

			if cfg.ScanCache {
				engine, err = engine.WithScanCache(fsys, cfg.Repository)
				if err != nil {
					return err
				}
			}

			err = engine.Backup(source)
			if err != nil {
				return err
			}

			o.Printf("backed up %s into %s\n", source, cfg.Repository)

			return nil
		},
	}
}

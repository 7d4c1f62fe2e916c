package command

import (
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/volodymyrd/echarlar/internal/core/domain"
	"github.com/volodymyrd/echarlar/internal/storage"
	"github.com/volodymyrd/echarlar/internal/storage/snapshot"
	"github.com/volodymyrd/echarlar/internal/telemetry/logger"
)

// DefaultBackupDir is the snapshot directory used when --dir is not set.
const DefaultBackupDir = "./echarlar-backups"

// BackupCommand returns the backup subcommand group.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Create and restore store snapshots (badger engine)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Usage:   "Snapshot directory",
				EnvVars: []string{"ECHARLAR_BACKUP_DIR"},
				Value:   DefaultBackupDir,
			},
			&cli.StringFlag{
				Name:    "passphrase",
				Usage:   "Encrypt snapshots with a key derived from this passphrase",
				EnvVars: []string{"ECHARLAR_BACKUP_PASSPHRASE"},
			},
			&cli.StringFlag{
				Name:  "algorithm",
				Usage: "Cipher: aes-gcm, chacha20-poly1305 (default: host preference)",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:   "create",
				Usage:  "Write a snapshot of the store",
				Action: backupCreate,
			},
			{
				Name:   "list",
				Usage:  "List snapshots, oldest first",
				Action: backupList,
			},
			{
				Name:      "inspect",
				Usage:     "Verify a snapshot and show its metadata",
				ArgsUsage: "SNAPSHOT_ID",
				Action:    backupInspect,
			},
			{
				Name:      "restore",
				Usage:     "Restore a snapshot into the store (latest when no ID is given)",
				ArgsUsage: "[SNAPSHOT_ID]",
				Action:    backupRestore,
			},
			{
				Name:  "prune",
				Usage: "Delete snapshots outside the retention policy",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "keep",
						Usage: "Number of snapshots to keep",
						Value: snapshot.DefaultRetentionCount,
					},
					&cli.IntFlag{
						Name:  "keep-days",
						Usage: "Keep snapshots newer than this many days (-1 disables)",
						Value: snapshot.DefaultRetentionDays,
					},
				},
				Action: backupPrune,
			},
		},
	}
}

type backupView struct {
	ID        string    `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Records   uint64    `json:"records" yaml:"records"`
	Size      int64     `json:"size" yaml:"size"`
	Encrypted bool      `json:"encrypted" yaml:"encrypted"`
	Algorithm string    `json:"algorithm,omitempty" yaml:"algorithm,omitempty" table:"wide"`
	Checksum  string    `json:"checksum,omitempty" yaml:"checksum,omitempty" table:"wide"`
	Path      string    `json:"path" yaml:"path" table:"wide"`
}

func newBackupView(info *snapshot.Info) backupView {
	return backupView{
		ID:        info.ID,
		CreatedAt: info.CreatedAt,
		Records:   info.RecordCount(),
		Size:      info.Size,
		Encrypted: info.Encrypted,
		Algorithm: info.Algorithm,
		Checksum:  info.Checksum,
		Path:      info.Path,
	}
}

type pruneView struct {
	Removed int `json:"removed" yaml:"removed"`
	Kept    int `json:"kept" yaml:"kept"`
}

// backupManager builds a snapshot manager from the group flags.
func backupManager(c *cli.Context) (*snapshot.Manager, error) {
	cfg := snapshot.DefaultConfig(c.String("dir"))
	if c.IsSet("keep") {
		cfg.RetentionCount = c.Int("keep")
	}
	if c.IsSet("keep-days") {
		cfg.RetentionDays = c.Int("keep-days")
	}
	if p := c.String("passphrase"); p != "" {
		cfg.Encryption.Passphrase = []byte(p)
	}
	cfg.Encryption.Algorithm = c.String("algorithm")
	cfg.Logger = logger.FromContext(commandContext(c)).Slog()

	m, err := snapshot.NewManager(cfg)
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithDetails("backup configuration").WithCause(err)
	}
	return m, nil
}

// backupEngine returns the KV engine of the badger store.
func backupEngine(c *cli.Context) (storage.KVEngine, error) {
	store, err := OpenStore(c)
	if err != nil {
		return nil, err
	}
	kv, ok := store.(*storage.KVStore)
	if !ok {
		return nil, domain.ErrInvalidArgument.WithDetailsf("backups require the %s engine", storage.EngineBadger)
	}
	return kv.Engine(), nil
}

func backupCreate(c *cli.Context) error {
	m, err := backupManager(c)
	if err != nil {
		return err
	}
	engine, err := backupEngine(c)
	if err != nil {
		return err
	}

	info, err := m.Create(commandContext(c), engine)
	if err != nil {
		return domain.ErrIO.WithDetails("create snapshot").WithCause(err)
	}
	return render(c, newBackupView(info))
}

func backupList(c *cli.Context) error {
	m, err := backupManager(c)
	if err != nil {
		return err
	}

	infos, err := m.List()
	if err != nil {
		return domain.ErrIO.WithDetails("list snapshots").WithCause(err)
	}
	views := make([]backupView, 0, len(infos))
	for _, info := range infos {
		views = append(views, newBackupView(info))
	}
	return render(c, views)
}

func backupInspect(c *cli.Context) error {
	if c.NArg() < 1 {
		return domain.ErrInvalidArgument.WithDetails("missing SNAPSHOT_ID argument")
	}
	m, err := backupManager(c)
	if err != nil {
		return err
	}

	info, err := m.Inspect(c.Args().First())
	if err != nil {
		return snapshotErr(err, "inspect snapshot")
	}
	return render(c, newBackupView(info))
}

func backupRestore(c *cli.Context) error {
	m, err := backupManager(c)
	if err != nil {
		return err
	}
	engine, err := backupEngine(c)
	if err != nil {
		return err
	}

	info, err := m.Restore(commandContext(c), c.Args().First(), engine)
	if err != nil {
		return snapshotErr(err, "restore snapshot")
	}
	if err := engine.Sync(); err != nil {
		return domain.ErrIO.WithDetails("sync store").WithCause(err)
	}
	return render(c, newBackupView(info))
}

func backupPrune(c *cli.Context) error {
	m, err := backupManager(c)
	if err != nil {
		return err
	}

	removed, err := m.Prune()
	if err != nil {
		return domain.ErrIO.WithDetails("prune snapshots").WithCause(err)
	}
	infos, err := m.List()
	if err != nil {
		return domain.ErrIO.WithDetails("list snapshots").WithCause(err)
	}
	return render(c, pruneView{Removed: removed, Kept: len(infos)})
}

// snapshotErr maps snapshot errors onto domain errors.
func snapshotErr(err error, action string) error {
	switch {
	case errors.Is(err, snapshot.ErrNotFound), errors.Is(err, snapshot.ErrNoSnapshots):
		return domain.ErrNotFound.WithDetails(action).WithCause(err)
	case errors.Is(err, snapshot.ErrEncrypted), errors.Is(err, snapshot.ErrNotEncrypted),
		errors.Is(err, snapshot.ErrDecryptionFailed):
		return domain.ErrInvalidArgument.WithDetails(action).WithCause(err)
	default:
		return domain.ErrIO.WithDetails(action).WithCause(err)
	}
}

// Package backup ships consistent snapshots of the notes database to object
// storage and prunes old ones.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"notekeeper/internal/storage"
)

const snapshotTimeLayout = "20060102T150405Z"

// Manager runs database backups on a fixed interval.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	RunOnce(ctx context.Context) (string, error)
}

type Config struct {
	Bucket    string
	KeyPrefix string
	Interval  time.Duration
	Keep      int
	TempDir   string
	Logger    *logrus.Logger
}

type manager struct {
	cfg     Config
	db      *sql.DB
	storage storage.Service
	now     func() time.Time

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewManager(cfg Config, db *sql.DB, store storage.Service) Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 7
	}
	cfg.KeyPrefix = strings.Trim(cfg.KeyPrefix, "/")
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "notekeeper-backups"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &manager{
		cfg:     cfg,
		db:      db,
		storage: store,
		now:     time.Now,
	}
}

func (m *manager) Start(ctx context.Context) error {
	if m.cfg.Bucket == "" {
		return fmt.Errorf("backup bucket is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return fmt.Errorf("backup manager already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.loop(loopCtx)

	m.cfg.Logger.Infof("backup manager started, every %s to s3://%s/%s", m.cfg.Interval, m.cfg.Bucket, m.cfg.KeyPrefix)
	return nil
}

func (m *manager) Shutdown() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("backup manager stopped")
}

func (m *manager) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			location, err := m.RunOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.cfg.Logger.WithError(err).Warn("database backup failed")
				continue
			}
			m.cfg.Logger.WithField("location", location).Info("database backup uploaded")
		}
	}
}

// RunOnce snapshots the database, uploads the snapshot and prunes old ones.
// It returns the location of the uploaded object.
func (m *manager) RunOnce(ctx context.Context) (string, error) {
	if m.cfg.Bucket == "" {
		return "", fmt.Errorf("backup bucket is required")
	}

	dir, err := os.MkdirTemp(m.cfg.TempDir, "notekeeper-backup-")
	if err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "snapshot.db")
	// VACUUM INTO produces a consistent, compacted copy of the live database
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return "", fmt.Errorf("snapshot database: %w", err)
	}

	key := fmt.Sprintf("%s/notes-%s-%s.db",
		m.cfg.KeyPrefix,
		m.now().UTC().Format(snapshotTimeLayout),
		uuid.NewString()[:8],
	)
	progress := func(done, total int64) {
		m.cfg.Logger.WithFields(logrus.Fields{"key": key, "done": done, "total": total}).Debug("uploading snapshot")
	}
	location, err := m.storage.UploadFile(ctx, snapshot, storage.UploadOptions{
		Bucket:           m.cfg.Bucket,
		Key:              key,
		ProgressCallback: progress,
	})
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}

	if err := m.prune(ctx); err != nil {
		m.cfg.Logger.WithError(err).Warn("prune old backups")
	}
	return location, nil
}

// prune deletes all but the newest Keep snapshots under the key prefix.
func (m *manager) prune(ctx context.Context) error {
	objects, err := m.storage.ListObjects(ctx, m.cfg.Bucket, m.cfg.KeyPrefix+"/notes-")
	if err != nil {
		return err
	}
	if len(objects) <= m.cfg.Keep {
		return nil
	}

	// snapshot keys embed a sortable UTC timestamp
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key > objects[j].Key
	})

	stale := make([]string, 0, len(objects)-m.cfg.Keep)
	for _, obj := range objects[m.cfg.Keep:] {
		stale = append(stale, obj.Key)
	}
	if err := m.storage.DeleteObjects(ctx, m.cfg.Bucket, stale); err != nil {
		return err
	}
	m.cfg.Logger.WithField("count", len(stale)).Debug("pruned old backups")
	return nil
}

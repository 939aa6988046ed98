package internal

import (
	"context"
	"fmt"
	"time"

	"bitwise74/tmpfile-api/aws"
	"bitwise74/tmpfile-api/cloudflare"
	"bitwise74/tmpfile-api/db"
	"bitwise74/tmpfile-api/internal/service"
	"bitwise74/tmpfile-api/internal/storage"
	"bitwise74/tmpfile-api/pkg/middleware"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps is handed to every handler. Nothing in it is a package global.
type Deps struct {
	DB       *gorm.DB
	Store    storage.Store
	Records  *service.RecordManager
	Uploads  *service.UploadService
	Counter  *service.DownloadCounter
	Sweeper  *service.ExpirySweeper
	Limiter  *middleware.RateLimiter
	Settings Settings
}

// Settings are the handler facing knobs
type Settings struct {
	Service       service.Config
	BaseURL       string
	MinExpiry     time.Duration
	MaxExpiry     time.Duration
	Workers       int
	QueueSize     int
	SweepSchedule string
}

// SettingsFromConfig reads the validated viper config
func SettingsFromConfig() Settings {
	return Settings{
		Service: service.Config{
			Limits: service.Limits{
				Temporary: viper.GetInt64("upload.max_size_temporary_bytes"),
				Permanent: viper.GetInt64("upload.max_size_permanent_bytes"),
			},
			MaxStorage: viper.GetInt64("storage.max_usage_bytes"),
			TempDir:    viper.GetString("upload.temp_dir"),
		},
		BaseURL:       viper.GetString("host.base_url"),
		MinExpiry:     time.Duration(viper.GetInt64("upload.min_expiry")) * time.Second,
		MaxExpiry:     time.Duration(viper.GetInt64("upload.max_expiry")) * time.Second,
		Workers:       viper.GetInt("downloads.workers"),
		QueueSize:     viper.GetInt("downloads.queue_size"),
		SweepSchedule: viper.GetString("cleanup.schedule"),
	}
}

// NewDeps connects to the configured database and object store
func NewDeps(ctx context.Context) (*Deps, error) {
	gdb, err := db.New()
	if err != nil {
		return nil, err
	}

	store, err := newStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store, %w", err)
	}

	return Assemble(gdb, store, SettingsFromConfig())
}

func newStore(ctx context.Context) (storage.Store, error) {
	switch t := viper.GetString("storage.type"); t {
	case "s3":
		c, err := aws.NewS3(ctx)
		if err != nil {
			return nil, err
		}
		return c.Store(), nil
	case "r2":
		c, err := cloudflare.NewR2(ctx)
		if err != nil {
			return nil, err
		}
		return c.Store(), nil
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", t)
	}
}

// Assemble wires the services on top of already opened stores
func Assemble(gdb *gorm.DB, store storage.Store, s Settings) (*Deps, error) {
	records, err := service.NewRecordManager(gdb, store)
	if err != nil {
		return nil, err
	}

	uploads, err := service.NewUploadService(records, store, s.Service)
	if err != nil {
		return nil, err
	}

	counter := service.NewDownloadCounter(records, s.Workers, s.QueueSize)
	uploads.UseDownloadCounter(counter)

	d := &Deps{
		DB:       gdb,
		Store:    store,
		Records:  records,
		Uploads:  uploads,
		Counter:  counter,
		Sweeper:  service.NewExpirySweeper(uploads, s.SweepSchedule),
		Settings: s,
	}

	return d, d.Validate()
}

// Validate reports the first missing handle
func (d *Deps) Validate() error {
	checks := []struct {
		name string
		ok   bool
	}{
		{"database", d.DB != nil},
		{"object store", d.Store != nil},
		{"record manager", d.Records != nil},
		{"upload service", d.Uploads != nil},
		{"download counter", d.Counter != nil},
	}

	for _, c := range checks {
		if !c.ok {
			return fmt.Errorf("%s, %w", c.name, service.ErrNotInitialized)
		}
	}

	return nil
}

// Start launches the background workers
func (d *Deps) Start() error {
	d.Counter.StartWorkerPool()

	if d.Sweeper != nil {
		return d.Sweeper.Start()
	}

	return nil
}

// Close stops background work and releases the database
func (d *Deps) Close() error {
	if d.Sweeper != nil {
		d.Sweeper.Stop()
	}
	if d.Limiter != nil {
		d.Limiter.Stop()
	}
	d.Counter.Close()

	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql handle, %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database, %w", err)
	}

	zap.L().Debug("Dependencies closed")
	return nil
}

package container

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/garyjia/ers-reimbursement/internal/application/port"
	"github.com/garyjia/ers-reimbursement/internal/application/service"
	"github.com/garyjia/ers-reimbursement/internal/config"
	"github.com/garyjia/ers-reimbursement/internal/infrastructure/persistence/repository"
	"github.com/garyjia/ers-reimbursement/internal/infrastructure/storage"
	"github.com/garyjia/ers-reimbursement/internal/report"
	"github.com/garyjia/ers-reimbursement/pkg/database"
	"github.com/garyjia/ers-reimbursement/pkg/utils"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	db           *database.DB
	repositories *RepositoryBundle
	receipts     port.ReceiptStorage

	// Application
	services *ServiceBundle
	exporter *report.ExcelExporter

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Reimbursement port.ReimbursementRepository
	User          port.UserRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Reimbursement service.ReimbursementService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components:
// 1. Database pool, migrations and repositories
// 2. Receipt storage
// 3. Application services
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized", zap.String("driver", c.db.Driver()))

	if err := c.initStorage(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.logger.Info("Storage initialized", zap.String("receipts_dir", c.config.Storage.ReceiptsDir))

	c.initServices()
	c.logger.Info("Application services initialized")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var err error
	if c.db != nil {
		if err = c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			err = fmt.Errorf("close database: %w", err)
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		return err
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.db == nil {
		status.Components["database"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	} else if err := c.db.HealthCheck(ctx); err != nil {
		status.Components["database"] = ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)}
		status.Overall = false
	} else {
		status.Components["database"] = ComponentHealth{Healthy: true}
	}

	if info, err := os.Stat(c.config.Storage.ReceiptsDir); err != nil || !info.IsDir() {
		status.Components["receipts"] = ComponentHealth{Healthy: false, Message: "receipts directory unavailable"}
		status.Overall = false
	} else {
		status.Components["receipts"] = ComponentHealth{Healthy: true}
	}

	return status
}

// HealthCheck reports the first unhealthy component as an error
func (c *Container) HealthCheck(ctx context.Context) error {
	status := c.Health(ctx)
	if status.Overall {
		return nil
	}
	for _, name := range []string{"database", "receipts"} {
		if h := status.Components[name]; !h.Healthy {
			return fmt.Errorf("%s: %s", name, h.Message)
		}
	}
	return fmt.Errorf("unhealthy")
}

// initDatabase opens the pool, applies migrations and builds repositories
func (c *Container) initDatabase(ctx context.Context) error {
	dbCfg := c.config.Database
	poolCfg := database.Config{
		Driver:          dbCfg.Driver,
		Path:            dbCfg.Path,
		MaxOpenConns:    dbCfg.MaxOpenConns,
		MaxIdleConns:    dbCfg.MaxIdleConns,
		ConnMaxLifetime: dbCfg.ConnMaxLifetime,
	}
	if dbCfg.Driver == database.DriverPostgres {
		poolCfg.DSN = dbCfg.PostgresDSN()
	}

	db, err := database.New(poolCfg, c.logger)
	if err != nil {
		return err
	}
	c.db = db

	if err := database.NewMigrator(db, c.logger).RunMigrations(ctx); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	cache := repository.NewLookupCache(dbCfg.LookupCacheSize, dbCfg.LookupCacheTTL)
	c.repositories = &RepositoryBundle{
		Reimbursement: repository.NewReimbursementRepository(db, cache, c.logger),
		User:          repository.NewUserRepository(db, c.logger),
	}
	return nil
}

// initStorage prepares the receipts directory
func (c *Container) initStorage() error {
	dir := c.config.Storage.ReceiptsDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create receipts directory: %w", err)
	}
	c.receipts = storage.NewLocalReceiptStorage(dir, c.logger)
	return nil
}

// initServices wires application services
func (c *Container) initServices() {
	c.services = &ServiceBundle{
		Reimbursement: service.NewReimbursementService(
			c.repositories.Reimbursement,
			c.repositories.User,
			c.receipts,
			utils.NewKVLogger(c.logger),
		),
	}
	c.exporter = report.NewExcelExporter(c.logger)
}

func (c *Container) closeDatabase() {
	if c.db == nil {
		return
	}
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close database", zap.Error(err))
	}
	c.db = nil
}

// Getters for accessing container components

// DB returns the database pool.
func (c *Container) DB() *database.DB {
	return c.db
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Exporter returns the spreadsheet exporter.
func (c *Container) Exporter() *report.ExcelExporter {
	return c.exporter
}

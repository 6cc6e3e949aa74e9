package homeassistant

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/matter-ipmap/internal/inventory"
)

// NotificationDomain and NotificationService create a persistent notification.
const (
	NotificationDomain  = "persistent_notification"
	NotificationService = "create"
)

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Notification is a persistent notification. Posting again with the same
// NotificationID replaces the previous one.
type Notification struct {
	Title          string
	Message        string
	NotificationID string
}

// ListDevices returns the device registry.
func (c *Conn) ListDevices(ctx context.Context) ([]inventory.DeviceRecord, error) {
	var devices []inventory.DeviceRecord
	if err := c.Command(ctx, CmdDeviceRegistryList, nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// ListEntities returns the entity registry.
func (c *Conn) ListEntities(ctx context.Context) ([]inventory.EntityRecord, error) {
	var entities []inventory.EntityRecord
	if err := c.Command(ctx, CmdEntityRegistryList, nil, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// CallService invokes a service.
func (c *Conn) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	return c.Command(ctx, CmdCallService, map[string]any{
		"domain":       domain,
		"service":      service,
		"service_data": data,
	}, nil)
}

// CreateNotification posts a persistent notification.
func (c *Conn) CreateNotification(ctx context.Context, n Notification) error {
	data := map[string]any{
		"title":   n.Title,
		"message": n.Message,
	}
	if n.NotificationID != "" {
		data["notification_id"] = n.NotificationID
	}
	return c.CallService(ctx, NotificationDomain, NotificationService, data)
}

// Client performs one-shot operations, each on its own connection.
type Client struct {
	cfg    Config
	logger Logger
	now    func() time.Time
}

// New validates cfg and creates a Client. No connection is made.
func New(cfg Config) (*Client, error) {
	if _, err := WebsocketURL(cfg.URL); err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		logger: noopLogger{},
		now:    time.Now,
	}, nil
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Snapshot fetches the device and entity registries. Any failure is
// wrapped in inventory.ErrInventoryUnavailable; no partial snapshot is
// returned.
func (c *Client) Snapshot(ctx context.Context) (inventory.Snapshot, error) {
	conn, err := Dial(ctx, c.cfg)
	if err != nil {
		return inventory.Snapshot{}, fmt.Errorf("%w: %w", inventory.ErrInventoryUnavailable, err)
	}
	defer conn.Close() //nolint:errcheck // Read-only session

	c.logger.Debug("connected to home assistant", "version", conn.Version())

	devices, err := conn.ListDevices(ctx)
	if err != nil {
		return inventory.Snapshot{}, fmt.Errorf("%w: listing devices: %w", inventory.ErrInventoryUnavailable, err)
	}

	entities, err := conn.ListEntities(ctx)
	if err != nil {
		return inventory.Snapshot{}, fmt.Errorf("%w: listing entities: %w", inventory.ErrInventoryUnavailable, err)
	}

	c.logger.Info("inventory fetched",
		"devices", len(devices),
		"entities", len(entities),
	)

	return inventory.Snapshot{
		Devices:   devices,
		Entities:  entities,
		FetchedAt: c.now().UTC(),
	}, nil
}

// CreateNotification posts a persistent notification on a fresh connection.
func (c *Client) CreateNotification(ctx context.Context, n Notification) error {
	conn, err := Dial(ctx, c.cfg)
	if err != nil {
		return fmt.Errorf("posting notification: %w", err)
	}
	defer conn.Close() //nolint:errcheck // Notification already sent or failed

	if err := conn.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("posting notification: %w", err)
	}
	return nil
}

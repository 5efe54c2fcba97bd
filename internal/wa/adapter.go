package wa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.mau.fi/whatsmeow"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.uber.org/zap"

	"github.com/rgdental/wawork/internal/manager"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter wraps the whatsmeow client and owns the credential container. The
// pairing material lives in a dedicated auth directory; deleting that
// directory is equivalent to a full logout.
type Adapter struct {
	mu        sync.Mutex
	container *sqlstore.Container
	client    *whatsmeow.Client
	stale     bool
	sink      func(manager.Event)
	logger    *zap.Logger
	authDir   string
}

// NewAdapter opens (or creates) the credential bundle under authDir and
// prepares a client for it.
func NewAdapter(ctx context.Context, authDir string, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("RG Dental Worker", [3]uint32{0, 1, 0})

	if err := os.MkdirAll(authDir, 0700); err != nil {
		return nil, fmt.Errorf("create auth dir: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(authDir, "session.db")),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create credential store: %w", err)
	}

	a := &Adapter{
		container: container,
		logger:    logger,
		authDir:   authDir,
	}
	if err := a.buildClient(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// OnEvent registers the session manager's dispatcher. Must be set before the
// first Connect.
func (a *Adapter) OnEvent(fn func(manager.Event)) {
	a.sink = fn
}

func (a *Adapter) emit(ev manager.Event) {
	if a.sink != nil {
		a.sink(ev)
	}
}

func (a *Adapter) buildClient(ctx context.Context) error {
	deviceStore, err := a.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("get device store: %w", err)
	}
	client := whatsmeow.NewClient(deviceStore, nil)
	// The session manager owns reconnection policy.
	client.EnableAutoReconnect = false
	client.AddEventHandler(a.handleEvent)
	a.client = client
	a.stale = false
	return nil
}

// Connect begins the network handshake. When no credentials are stored it
// opens the QR pairing channel first and streams challenges to the manager.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stale {
		// Previous pairing was discarded; a fresh device is required.
		if err := a.buildClient(ctx); err != nil {
			return &manager.FatalError{Err: err}
		}
	}
	if a.client.IsConnected() {
		return nil
	}
	if a.client.Store.ID == nil {
		qrChan, err := a.client.GetQRChannel(ctx)
		if err != nil {
			return &manager.FatalError{Err: fmt.Errorf("get qr channel: %w", err)}
		}
		go a.pumpQR(qrChan)
	}
	a.logger.Info("connecting to WhatsApp")
	return a.client.Connect()
}

func (a *Adapter) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			a.emit(manager.EvQR{Code: item.Code})
		case "success":
			// events.Connected follows on the main handler.
		case "timeout":
			a.emit(manager.EvDisconnected{Reason: "qr pairing timeout"})
		default:
			if item.Error != nil {
				a.emit(manager.EvDisconnected{Reason: "qr pairing: " + item.Error.Error()})
			}
		}
	}
}

// Disconnect terminates the network connection without touching credentials.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	c := a.client
	a.mu.Unlock()
	if c != nil {
		c.Disconnect()
	}
}

// Logout invalidates the remote session. whatsmeow also wipes the device
// record from the credential store.
func (a *Adapter) Logout(ctx context.Context) error {
	a.mu.Lock()
	c := a.client
	a.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Logout(ctx)
}

// HasCredentials reports whether stored pairing material exists.
func (a *Adapter) HasCredentials() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.stale && a.client.Store.ID != nil
}

// ClearCredentials deletes the device record so the next Connect requires a
// fresh QR scan.
func (a *Adapter) ClearCredentials(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client.Store.ID != nil {
		if err := a.client.Store.Delete(ctx); err != nil {
			return fmt.Errorf("delete device: %w", err)
		}
	}
	a.stale = true
	return nil
}

// SendText sends a text message to a normalized JID. Returns the server
// message ID.
func (a *Adapter) SendText(ctx context.Context, jid, text string) (string, error) {
	a.mu.Lock()
	c := a.client
	a.mu.Unlock()
	return sendText(ctx, c, jid, text)
}

// NormalizeRecipient converts a phone number or JID string into the
// provider's addressing format.
func (a *Adapter) NormalizeRecipient(to string) (string, error) {
	return NormalizeRecipient(to)
}

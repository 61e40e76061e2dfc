package cmd

import (
	"context"
	"time"

	"github.com/BioHazard786/watchsync/internal/api"
	"github.com/BioHazard786/watchsync/internal/config"
	"github.com/BioHazard786/watchsync/internal/engine"
	"github.com/BioHazard786/watchsync/internal/ui"
)

// joinTimeout bounds how long a command waits for the first room sync.
const joinTimeout = 15 * time.Second

// Session is a running engine joined to one room.
type Session struct {
	RoomID string
	Config *config.Config
	Engine *engine.Engine
	API    *api.Client

	cancel context.CancelFunc
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, engine.NewError("load config", err)
	}
	return cfg, nil
}

// NewSession builds an engine for roomID from cfg. It does not connect.
func NewSession(cfg *config.Config, roomID string, observer engine.Observer) (*Session, error) {
	client := api.NewClient(cfg.APIBaseURL(), cfg.User)
	client.SetTimeout(cfg.ResolveTimeout)

	opts := engine.DefaultOptions(roomID, cfg.WebSocketURL(roomID))
	opts.Identity = cfg.User
	opts.DriftThreshold = cfg.DriftThreshold
	opts.GuardStaleResolutions = cfg.ResolveGuard
	opts.ResolveTimeout = cfg.ResolveTimeout
	opts.SnapshotPath = cfg.SnapshotPath(roomID)
	opts.Resolver = client

	e, err := engine.New(opts, observer)
	if err != nil {
		return nil, err
	}

	return &Session{
		RoomID: roomID,
		Config: cfg,
		Engine: e,
		API:    client,
	}, nil
}

// Start runs the engine until ctx is cancelled or Close is called.
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.Engine.Run(ctx)
}

// WaitSynced blocks until the room has sent its state, showing a spinner
// meanwhile.
func (s *Session) WaitSynced(ctx context.Context) error {
	stopSpinner := ui.RunConnectionSpinner("Joining room " + s.RoomID + "...")
	defer stopSpinner()

	ctx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()
	return s.Engine.WaitSynced(ctx)
}

// Close stops the engine and waits for its snapshot to be written.
func (s *Session) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.Engine.Done()
}

// Connect loads the config, starts a session for roomID and waits for the
// first sync.
func Connect(ctx context.Context, roomID string, observer engine.Observer) (*Session, error) {
	cfg, err := LoadConfig(configOptions())
	if err != nil {
		return nil, err
	}

	s, err := NewSession(cfg, roomID, observer)
	if err != nil {
		return nil, err
	}

	s.Start(ctx)
	if err := s.WaitSynced(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

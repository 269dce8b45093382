package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/malivvan/uis/device"
	"github.com/malivvan/uis/discovery"
	"github.com/malivvan/uis/endpoint"
	"github.com/malivvan/uis/rpc"
	"github.com/malivvan/uis/target"
)

// EndpointDialer opens the remote message-port transport (external
// collaborator (c), §1) for a (team, port, token) subscription target.
// The control-channel byte transport that carries client RPCs and the
// event-delivery port this dials are both outside this module's scope;
// callers of New supply whatever they use in their deployment (an
// in-process channel for a single-binary demo, a real port/socket dial
// for a networked one).
type EndpointDialer func(team, port, token int64) (endpoint.Endpoint, error)

// Service owns every long-lived component of one running Input Service
// process: the device registry, its discovery loop, the target pool, and
// the RPC dispatcher that mediates client control calls.
type Service struct {
	Config Config
	Log    zerolog.Logger

	Targets    *target.Registry
	Devices    *device.Registry
	Discovery  *discovery.Discovery
	Dispatcher *rpc.Dispatcher
}

// New constructs a Service without starting discovery; call Start to
// begin watching cfg.HIDRoot. open overrides how discovery opens a
// candidate path; pass nil to use kerneldev.Open (real hardware). Tests
// and the demo CLI's --simulate mode pass a kerneldev.Sim-backed opener.
func New(cfg Config, dialer EndpointDialer, open discovery.Opener, log zerolog.Logger) *Service {
	targets := target.NewRegistry()
	devices := device.NewRegistry(targets, log)
	dispatcher := rpc.New(devices, targets, rpc.EndpointOpener(dialer), log)
	disc := discovery.New(cfg.HIDRoot, devices, open, log)

	return &Service{
		Config:     cfg,
		Log:        log,
		Targets:    targets,
		Devices:    devices,
		Discovery:  disc,
		Dispatcher: dispatcher,
	}
}

// Start begins the recursive scan and directory watch of cfg.HIDRoot
// (§4.7). It returns once the initial scan completes; the watch loop and
// every report reader goroutine continue running in the background.
func (s *Service) Start(ctx context.Context) error {
	s.Log.Info().Str("hid_root", s.Config.HIDRoot).Msg("starting discovery")
	if err := s.Discovery.Start(ctx); err != nil {
		return fmt.Errorf("service: starting discovery: %w", err)
	}
	return nil
}

// Shutdown implements §5's "~UISManager()": stop the discovery watch,
// then tear down every live device via Registry.Shutdown, which erases each
// device under the registry lock and tears it down after releasing it.
func (s *Service) Shutdown(ctx context.Context) {
	s.Log.Info().Msg("shutting down")
	s.Discovery.Stop()
	s.Devices.Shutdown(ctx)
}

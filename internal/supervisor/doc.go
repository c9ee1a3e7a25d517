// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

/*
Package supervisor runs the long-lived services of the conversation service
under a suture v4 supervisor tree.

	RootSupervisor ("roomlink")
	├── DeliverySupervisor ("delivery-layer")
	│   ├── eventbus.Bus          change events and notification jobs
	│   └── notify.Dispatcher     notification job queue
	├── RealtimeSupervisor ("realtime-layer")
	│   └── websocket.Hub         browser sessions
	└── APISupervisor ("api-layer")
	    └── services.HTTPServerService

Each layer restarts independently, so a failing notification backend does
not drop websocket sessions or HTTP traffic. Supervisor events are logged
through sutureslog using the zerolog-backed slog handler:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddDeliveryService(bus)
	tree.AddDeliveryService(dispatcher)
	tree.AddRealtimeService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)
*/
package supervisor

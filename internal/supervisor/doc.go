// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

/*
Package supervisor provides process supervision using suture v4.

The tree organizes long-running services into three layers for failure
isolation:

	RootSupervisor ("lumimd")
	├── MessagingSupervisor ("messaging-layer")
	│   └── EventRouterService
	├── JobsSupervisor ("jobs-layer")
	│   └── BackfillRunnerService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crash in the event router restarts that service under backoff without
affecting the ops HTTP endpoints, and a wedged backfill run cannot take
down event propagation. Supervisor lifecycle events are logged through
sutureslog.
*/
package supervisor

// Package process supervises game server processes.
//
// The package offers two levels of abstraction:
//
// Handle wraps os/exec for a single child process:
//   - Captured stdin for console commands
//   - Line readers on stdout and stderr
//   - Exit detection once both streams are drained
//   - Process group kill as a last resort
//
// Supervisor manages multiple servers by id:
//   - Start/Stop/SendCommand by id, with idempotent Start
//   - Lifecycle tracking (stopped, starting, running, stopping)
//   - Console parsing for readiness and player rosters
//   - Ordered log, status and roster events per server
//   - StopAll for graceful shutdown of all servers
//
// Example usage:
//
//	sup := process.NewSupervisor(&process.SupervisorOptions{
//	    Planner:   launch.NewPlanner(logger),
//	    Publisher: bus,
//	})
//	_ = sup.Start("main", "/srv/pz", launch.Params{AdminPassword: "secret"})
//	_ = sup.SendCommand("main", "players")
//	defer sup.StopAll(ctx)
package process

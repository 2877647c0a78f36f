// Package scheduler is the facade over the job core: the recurring job
// registry and the ad-hoc priority queue, behind one constructor and one
// start/stop lifecycle. Application code (HTTP routes, startup wiring)
// reaches the core only through this seam.
package scheduler

/*
Package health aggregates component-level readiness for a single process
(scheduler, controller, or node agent) and exposes it as JSON over
/health, /ready, and /live HTTP handlers.

A process constructs one Checker naming its critical components —
the ones that must be registered and healthy for /ready to report
"ready" — and registers each component's health as it starts up and as
it changes. /health reflects every registered component; /ready only
the critical subset.
*/
package health

// Package readiness provides the load-complete signal shared by the HTTP
// health endpoint and the worker's startup wait.
//
// Readiness is distinct from liveness: the process can be up long before the
// GPU-bound model has loaded. Handing a *State to both the health handler and
// the engine keeps the signal explicit instead of an ambient global.
package readiness

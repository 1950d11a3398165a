// Package daemon composes the model instances, job dispatcher, HTTP front
// door, and job journal into a single lifecycle with flock-based locking to
// prevent multiple instances from sharing a GPU.
package daemon

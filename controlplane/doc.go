// Package controlplane implements the node's local control plane: a
// loopback-bound JSON request/response API for a co-resident front-end.
// Authentication is intentionally absent; safety relies entirely on the
// loopback bind done by the caller that mounts Server.Router().
package controlplane

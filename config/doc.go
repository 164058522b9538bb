// Package config loads the node's single JSON configuration document,
// applying documented defaults for any field the file omits.
package config

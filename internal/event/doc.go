// Package event defines the storage-finalize notification record and the
// object path conventions that tie an object to a pipeline file.
package event

// Package factory is a small generic registry that builds modules from
// configuration. A module is a type name plus a map of raw settings which the
// factory decodes into its own struct.
//
// The metrics sinks listed under metrics.sinks are built this way:
//
//	sinks:
//	  - type: influx
//	    conf:
//	      url: http://influx:8086
//	      bucket: simbridge
package factory

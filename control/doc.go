// Package control holds the process-wide knobs of the mgoose runtime: the
// five-tier log level, a metrics counter registry, and a debug-probe
// registry (with a platform CPU-count probe) that an embedding host can
// fill and dump. The Manager itself uses only the log level.
//
// Everything here is process-global by design, mirroring the single
// C library instance a multi-manager process would otherwise share.
package control

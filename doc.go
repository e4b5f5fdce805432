// Package ethdma drives the DMA descriptor rings of the EQOS and MGBE Ethernet MACs.
//
// A Dma instance is taken from a fixed process-wide pool, initialized against an
// MMIO register window, and then driven by Transmit, ProcessTxCompletions,
// RefillRxDescriptors and ProcessRxCompletions. Descriptor rings live in memory
// reached through IO32, normally carved from an Arena.
package ethdma

import "github.com/binw666/ethdma/logging"

var logger = logging.New("ethdma")

// Package ce defines the copy engine (CE) configuration of the WCN3990 and a
// software copy engine that models its descriptor rings.
//
// A copy engine moves buffers between host and target memory. Each engine
// owns up to two rings: a source ring (host->target) and a destination ring
// (target->host). The host pairs every engine with a pipe of the same index.
package ce

import (
	"errors"
	"strconv"
)

const (
	// CountMax is the number of pipe slots reserved by the host.
	CountMax = 16
	// Count is the number of copy engines configured on the WCN3990.
	Count = 12
)

// AttrFlags are per engine attribute flags.
type AttrFlags uint32

const (
	AttrNoSnoop AttrFlags = 1 << iota
	AttrByteSwapData
	AttrSwizzleDescriptors
	// AttrDisIntr disables completion interrupts for the engine.
	AttrDisIntr
)

// Attr configures one copy engine.
type Attr struct {
	Flags AttrFlags `yaml:"flags"`
	// SrcEntries is the number of host->target descriptors. Zero means no source ring.
	SrcEntries int `yaml:"src_nentries"`
	// SrcSzMax is the largest transfer in bytes. The host uses it as the
	// buffer size for both directions.
	SrcSzMax int `yaml:"src_sz_max"`
	// DestEntries is the number of target->host descriptors. Zero means no destination ring.
	DestEntries int `yaml:"dest_nentries"`
}

func (a Attr) Validate() error {
	if a.SrcEntries < 0 || a.DestEntries < 0 || a.SrcSzMax < 0 {
		return errors.New("ce: negative attribute")
	}
	if a.SrcEntries > maxEntries || a.DestEntries > maxEntries {
		return errors.New("ce: ring too large " + strconv.Itoa(max(a.SrcEntries, a.DestEntries)))
	}
	return nil
}

const maxEntries = 1 << 13

// Name returns the interrupt name of copy engine id.
func Name(id int) string { return "WLAN_CE_" + strconv.Itoa(id) }

var wcn3990Table = [Count]Attr{
	// CE0: host->target HTC control streams
	{SrcEntries: 16, SrcSzMax: 2048},
	// CE1: target->host HTT + HTC control
	{SrcSzMax: 2048, DestEntries: 512},
	// CE2: target->host WMI
	{SrcSzMax: 2048, DestEntries: 64},
	// CE3: host->target WMI
	{SrcEntries: 32, SrcSzMax: 2048},
	// CE4: host->target HTT
	{Flags: AttrDisIntr, SrcEntries: 256, SrcSzMax: 256},
	// CE5: target->host HTT (ipa_uc->target)
	{SrcSzMax: 512, DestEntries: 512},
	// CE6: target autonomous hif_memcpy
	{},
	// CE7: ce_diag, the Diagnostic Window
	{SrcEntries: 2, SrcSzMax: 2048, DestEntries: 2},
	// CE8: target to uMC
	{SrcSzMax: 2048, DestEntries: 128},
	// CE9: target->host HTT
	{SrcSzMax: 2048, DestEntries: 512},
	// CE10: target->host HTT
	{SrcSzMax: 2048, DestEntries: 512},
	// CE11: target->host PKTLOG
	{SrcSzMax: 2048, DestEntries: 512},
}

// DefaultTable returns a copy of the WCN3990 host CE configuration.
func DefaultTable() []Attr {
	t := wcn3990Table
	return t[:]
}

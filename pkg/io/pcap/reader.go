// Package pcap reads packet captures as feature matrices for the detectors.
package pcap

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	dataio "github.com/hed1ad/goabod/pkg/io"
	"github.com/hed1ad/goabod/pkg/io/packet"
)

var _ dataio.FeatureSource = (*Reader)(nil)

// ErrNoLimit is returned when a live capture is read without a packet limit.
var ErrNoLimit = errors.New("pcap: live capture needs a packet limit")

// Reader reads packets from PCAP files or live interfaces.
type Reader struct {
	handle    *pcap.Handle
	extractor *packet.Extractor
	live      bool
	limit     int
	filter    string
}

// Option configures a Reader.
type Option func(*Reader)

// WithLimit stops Read after n packets. Zero means no limit.
func WithLimit(n int) Option {
	return func(r *Reader) {
		r.limit = n
	}
}

// WithFilter applies a BPF filter expression before packets are extracted.
func WithFilter(expr string) Option {
	return func(r *Reader) {
		r.filter = expr
	}
}

// NewFileReader creates a reader for PCAP files.
func NewFileReader(filename string, opts ...Option) (*Reader, error) {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return nil, fmt.Errorf("pcap: open %s: %w", filename, err)
	}
	return newReader(handle, false, opts)
}

// NewLiveReader creates a reader for live packet capture. WithLimit is required.
func NewLiveReader(iface string, snaplen int32, promisc bool, timeout time.Duration, opts ...Option) (*Reader, error) {
	handle, err := pcap.OpenLive(iface, snaplen, promisc, timeout)
	if err != nil {
		return nil, fmt.Errorf("pcap: open %s: %w", iface, err)
	}
	return newReader(handle, true, opts)
}

func newReader(handle *pcap.Handle, live bool, opts []Option) (*Reader, error) {
	r := &Reader{
		handle:    handle,
		extractor: packet.NewExtractor(),
		live:      live,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.live && r.limit <= 0 {
		handle.Close()
		return nil, ErrNoLimit
	}
	if r.filter != "" {
		if err := handle.SetBPFFilter(r.filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("pcap: filter %q: %w", r.filter, err)
		}
	}
	return r, nil
}

// Read returns packets as feature vectors, in capture order.
func (r *Reader) Read() ([][]float64, error) {
	if r.handle == nil {
		return nil, errors.New("pcap: reader not initialized")
	}

	var data [][]float64
	source := gopacket.NewPacketSource(r.handle, r.handle.LinkType())

	for p := range source.Packets() {
		data = append(data, r.extractor.Extract(p))
		if r.limit > 0 && len(data) >= r.limit {
			break
		}
	}

	return data, nil
}

// FeatureNames returns the names of extracted features.
func (r *Reader) FeatureNames() []string {
	return r.extractor.FeatureNames()
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.handle != nil {
		r.handle.Close()
		r.handle = nil
	}
	return nil
}

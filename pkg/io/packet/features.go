// Package packet turns decoded network packets into fixed-width feature vectors.
package packet

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Feature columns produced by Extractor.
const (
	FeaturePacketSize = iota
	FeatureInterArrival
	FeatureProtocol
	FeatureSrcPort
	FeatureDstPort
	FeatureTCPFlags
	FeatureTTL
	FeaturePayloadSize

	NumFeatures
)

var featureNames = [NumFeatures]string{
	"packet_size",
	"inter_arrival_time",
	"protocol",
	"src_port",
	"dst_port",
	"tcp_flags",
	"ip_ttl",
	"payload_size",
}

// Extractor converts packets to feature vectors. It remembers the previous
// packet's timestamp, so one Extractor serves one capture.
type Extractor struct {
	lastTimestamp time.Time
}

// NewExtractor creates a new packet feature extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract converts a packet to a feature vector laid out as FeatureNames.
func (e *Extractor) Extract(packet gopacket.Packet) []float64 {
	features := make([]float64, NumFeatures)

	features[FeaturePacketSize] = float64(len(packet.Data()))

	if md := packet.Metadata(); md != nil && !md.Timestamp.IsZero() {
		if !e.lastTimestamp.IsZero() {
			features[FeatureInterArrival] = md.Timestamp.Sub(e.lastTimestamp).Seconds()
		}
		e.lastTimestamp = md.Timestamp
	}

	switch {
	case packet.Layer(layers.LayerTypeTCP) != nil:
		tcp := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		features[FeatureProtocol] = float64(layers.IPProtocolTCP)
		features[FeatureSrcPort] = float64(tcp.SrcPort)
		features[FeatureDstPort] = float64(tcp.DstPort)
		features[FeatureTCPFlags] = tcpFlags(tcp)
	case packet.Layer(layers.LayerTypeUDP) != nil:
		udp := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		features[FeatureProtocol] = float64(layers.IPProtocolUDP)
		features[FeatureSrcPort] = float64(udp.SrcPort)
		features[FeatureDstPort] = float64(udp.DstPort)
	case packet.Layer(layers.LayerTypeICMPv4) != nil:
		features[FeatureProtocol] = float64(layers.IPProtocolICMPv4)
	}

	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		features[FeatureTTL] = float64(ip.TTL)
	case *layers.IPv6:
		features[FeatureTTL] = float64(ip.HopLimit)
	}

	if app := packet.ApplicationLayer(); app != nil {
		features[FeaturePayloadSize] = float64(len(app.Payload()))
	}

	return features
}

// FeatureNames returns the names of extracted features.
func (e *Extractor) FeatureNames() []string {
	return append([]string(nil), featureNames[:]...)
}

// tcpFlags packs SYN, ACK, FIN, RST, PSH and URG into bits 0 to 5.
func tcpFlags(tcp *layers.TCP) float64 {
	var flags float64
	for bit, set := range []bool{tcp.SYN, tcp.ACK, tcp.FIN, tcp.RST, tcp.PSH, tcp.URG} {
		if set {
			flags += float64(int(1) << bit)
		}
	}
	return flags
}

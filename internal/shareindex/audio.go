package shareindex

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AudioMetadata is the opportunistic per-file probe result described in
// §4.2 "Scan": bitrate, sample rate, duration, and whether the stream is
// variable bitrate. A probe failure never fails the scan — the file is
// retained in the catalog with Audio left nil.
type AudioMetadata struct {
	BitrateKbps int
	SampleRate  int
	Duration    time.Duration
	VBR         bool
}

// mpegBitrates is the MPEG-1 Layer III bitrate table, kbps, indexed by the
// 4-bit bitrate index in the frame header.
var mpegBitrates = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}

// mpegSampleRates is the MPEG-1 sample rate table, Hz, indexed by the 2-bit
// sample rate index.
var mpegSampleRates = [4]int{44100, 48000, 32000, 0}

// probeAudio reads just enough of path to locate and decode the first valid
// MPEG audio frame header. No ecosystem tag library is wired in here: no
// pack example imports one (grep-confirmed), so a frame-header parser is
// the smallest dependency-free way to serve §4.2's bitrate/sample-rate/
// duration/VBR fields.
func probeAudio(localPath string) *AudioMetadata {
	if !strings.EqualFold(filepath.Ext(localPath), ".mp3") {
		return nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil
	}

	const probeWindow = 64 * 1024
	buf := make([]byte, probeWindow)
	n, _ := f.Read(buf)
	buf = buf[:n]

	offset := skipID3v2(buf)
	header, frameOffset, ok := findFrameHeader(buf, offset)
	if !ok {
		return nil
	}

	vbr := hasVBRTag(buf, frameOffset, header.frameSize)

	meta := &AudioMetadata{
		BitrateKbps: header.bitrateKbps,
		SampleRate:  header.sampleRate,
		VBR:         vbr,
	}
	if header.bitrateKbps > 0 {
		bytesPerSecond := float64(header.bitrateKbps) * 1000 / 8
		meta.Duration = time.Duration(float64(info.Size()) / bytesPerSecond * float64(time.Second))
	}
	return meta
}

// skipID3v2 returns the byte offset past a leading ID3v2 tag, or 0 if buf
// doesn't start with one.
func skipID3v2(buf []byte) int {
	if len(buf) < 10 || string(buf[0:3]) != "ID3" {
		return 0
	}
	size := int(buf[6]&0x7f)<<21 | int(buf[7]&0x7f)<<14 | int(buf[8]&0x7f)<<7 | int(buf[9]&0x7f)
	return 10 + size
}

type frameHeader struct {
	bitrateKbps int
	sampleRate  int
	frameSize   int
}

// findFrameHeader scans buf from start for an MPEG-1 Layer III frame sync
// (11 set bits) and decodes its bitrate/sample-rate fields.
func findFrameHeader(buf []byte, start int) (frameHeader, int, bool) {
	for i := start; i+4 <= len(buf); i++ {
		if buf[i] != 0xFF || buf[i+1]&0xE0 != 0xE0 {
			continue
		}
		versionBits := (buf[i+1] >> 3) & 0x03
		layerBits := (buf[i+1] >> 1) & 0x03
		if versionBits != 0x03 || layerBits != 0x01 { // MPEG-1, Layer III
			continue
		}
		bitrateIdx := (buf[i+2] >> 4) & 0x0F
		sampleIdx := (buf[i+2] >> 2) & 0x03
		padding := (buf[i+2] >> 1) & 0x01
		if bitrateIdx == 0 || bitrateIdx == 0x0F || sampleIdx == 0x03 {
			continue
		}

		bitrate := mpegBitrates[bitrateIdx]
		sampleRate := mpegSampleRates[sampleIdx]
		if bitrate == 0 || sampleRate == 0 {
			continue
		}

		frameSize := 144*bitrate*1000/sampleRate + int(padding)
		return frameHeader{bitrateKbps: bitrate, sampleRate: sampleRate, frameSize: frameSize}, i, true
	}
	return frameHeader{}, 0, false
}

// hasVBRTag reports whether the frame starting at frameOffset carries a
// Xing/Info side-info tag, which marks a variable-bitrate stream.
func hasVBRTag(buf []byte, frameOffset, frameSize int) bool {
	end := frameOffset + frameSize
	if end > len(buf) {
		end = len(buf)
	}
	if frameOffset >= end {
		return false
	}
	window := buf[frameOffset:end]
	return bytes.Contains(window, []byte("Xing")) || bytes.Contains(window, []byte("Info")) || bytes.Contains(window, []byte("VBRI"))
}

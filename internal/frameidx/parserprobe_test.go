package frameidx

import (
	"bytes"
	"testing"

	"github.com/go-audio/audio"
)

// fakeVideoDecoder records every packet it was fed and returns a scripted
// picture type on the next call.
type fakeVideoDecoder struct {
	fed      [][]byte
	produced bool
	pict     PictureType
}

func (d *fakeVideoDecoder) DecodeOne(pkt Packet) (bool, PictureType, error) {
	d.fed = append(d.fed, pkt.Data)
	return d.produced, d.pict, nil
}

func (d *fakeVideoDecoder) Flush() (bool, PictureType) {
	return d.produced, d.pict
}

func TestDerivePictureTypePrimesWMV3ParserOnce(t *testing.T) {
	extradata := []byte{0xAA, 0xBB, 0xCC}
	dec := &fakeVideoDecoder{produced: true, pict: PictureI}
	p := newParserProbe(StreamParams{
		Codec:      CodecWMV3,
		ASFWrapped: true,
		Extradata:  extradata,
	}, dec, nil)

	pkt := &Packet{Data: []byte{0x01, 0x02}, Key: true}
	p.derivePictureType(pkt)

	if len(dec.fed) < 2 {
		t.Fatalf("expected priming feed plus frame feed, got %d feeds", len(dec.fed))
	}
	wantPrime := wrapSequenceHeaderEBDU(extradata)
	if !bytes.Equal(dec.fed[0], wantPrime) {
		t.Fatalf("first decoder feed was not the primed sequence header EBDU: got %x, want %x", dec.fed[0], wantPrime)
	}

	// A second packet on the same probe must not re-prime.
	fedBefore := len(dec.fed)
	pkt2 := &Packet{Data: []byte{0x03, 0x04}, Key: true}
	p.derivePictureType(pkt2)
	if len(dec.fed)-fedBefore != 1 {
		t.Fatalf("expected exactly one new feed (no re-priming), got %d", len(dec.fed)-fedBefore)
	}
}

func TestDerivePictureTypeClearsKeyframeOnNonIDecode(t *testing.T) {
	dec := &fakeVideoDecoder{produced: true, pict: PictureP}
	p := newParserProbe(StreamParams{Codec: CodecMPEG2Video}, dec, nil)

	pkt := &Packet{Data: []byte{0x00, 0x00, 0x01, 0xB3}, Key: true}
	p.derivePictureType(pkt)

	if pkt.Key {
		t.Fatalf("expected Key to be cleared when decode resolves to a non-I picture")
	}
}

// stubAudioDecoder yields a scripted sequence of buffers; nil entries model
// a decoder still holding onto its input.
type stubAudioDecoder struct {
	outputs []*audio.IntBuffer
	cursor  int
}

func (d *stubAudioDecoder) DecodeOne(pkt Packet) (*audio.IntBuffer, error) {
	if d.cursor >= len(d.outputs) {
		return nil, nil
	}
	out := d.outputs[d.cursor]
	d.cursor++
	return out, nil
}

func stereoBuffer(samplesPerChannel int) *audio.IntBuffer {
	return &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: 48000},
		Data:   make([]int, samplesPerChannel*2),
	}
}

func TestDeriveAudioLengthPrefersParserDuration(t *testing.T) {
	p := newParserProbe(StreamParams{Kind: StreamAudio}, nil, nil)
	if got := p.deriveAudioLength(Packet{}, 960, 1024); got != 960 {
		t.Fatalf("parser duration must win, got %d", got)
	}
}

func TestDeriveAudioLengthUsesNominalFrameSizeWithoutDelay(t *testing.T) {
	p := newParserProbe(StreamParams{Kind: StreamAudio}, nil, nil)
	if got := p.deriveAudioLength(Packet{}, -1, 1152); got != 1152 {
		t.Fatalf("expected nominal frame size, got %d", got)
	}
}

func TestDeriveAudioLengthDecodeProbeCountsDelay(t *testing.T) {
	dec := &stubAudioDecoder{outputs: []*audio.IntBuffer{nil, stereoBuffer(1024), stereoBuffer(1024)}}
	p := newParserProbe(StreamParams{Kind: StreamAudio}, nil, dec)

	if got := p.deriveAudioLength(Packet{}, -1, 0); got != -1 {
		t.Fatalf("a swallowed packet must report an indeterminate length, got %d", got)
	}
	if p.delayCount != 1 {
		t.Fatalf("expected one frame of outstanding delay, got %d", p.delayCount)
	}
	if got := p.deriveAudioLength(Packet{}, -1, 0); got != 1024 {
		t.Fatalf("expected the produced frame's per-channel sample count, got %d", got)
	}

	drained := p.drainAudioDelay()
	if len(drained) != 1 || drained[0] != 1024 {
		t.Fatalf("expected one drained frame of 1024 samples, got %v", drained)
	}
	if p.delayCount != 0 {
		t.Fatalf("drain must settle the outstanding delay, got %d", p.delayCount)
	}
}

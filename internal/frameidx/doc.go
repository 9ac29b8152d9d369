// Package frameidx builds and reuses a persistent frame index for a multiplexed
// media container so that a downstream frame server can seek to any frame by
// number with correct decode semantics: the right keyframe, the right
// extradata, the right timestamp basis, and correct A/V alignment.
//
// The hard part is not decoding pixels. It is reconstructing a trustworthy
// random-access model on top of containers whose packet streams are variously
// missing PTS, missing DTS, missing byte offsets, carry reordered B-pictures,
// change codec parameters mid-stream, lie about keyframes, or hide a video
// stream inside an audio one (DV-in-AVI Type-1).
//
// Scope is deliberately narrow. Container demuxing, codec decoding,
// transcoding, network I/O and GUI are all external collaborators reached
// through the Demuxer and Decoder contracts in packet.go; this package owns
// only the indexing model built on top of them.
package frameidx

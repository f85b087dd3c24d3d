// Package vfile implements the Virtual File (spec.md §4.4): one
// on-the-fly-synthesized DSF stream over a single (area, track) of an open
// SACD ISO, exposed as an io.ReadSeekCloser.
package vfile

import (
	"fmt"
	"io"

	"github.com/sacdfs/sacdfs/discreader"
	"github.com/sacdfs/sacdfs/dsf"
	"github.com/sacdfs/sacdfs/dstdecoder"
	"github.com/sacdfs/sacdfs/id3overlay"
	"github.com/sacdfs/sacdfs/mtpipeline"
	"github.com/sacdfs/sacdfs/sacderr"
	"github.com/sacdfs/sacdfs/transform"
)

// File is one open virtual DSF stream. It is single-consumer: the owning
// driver must serialize Read/Seek/Close calls against one File (spec.md
// §5). Two Files, even over the same track, are fully independent — each
// owns a private discreader.Reader.
type File struct {
	reader         discreader.Reader
	area           discreader.Area
	track          uint8
	overlayStore   *id3overlay.Store
	decoderFactory dstdecoder.Factory

	format   discreader.FrameFormat
	channels int

	startFrame, endFrame, currentFrame uint32

	info   dsf.Info
	header [dsf.HeaderSize]byte

	xform           *transform.State
	audioStaging    []byte
	audioStagingPos int
	audioEOF        bool
	audioFlushed    bool
	seekSkipBytes   int

	useMT    bool
	pipeline *mtpipeline.Pipeline

	compressedBuf []byte // ST mode scratch for GetSoundData
	decodeScratch []byte // ST mode scratch for Decode output

	position   uint64
	pendingErr error
	closed     bool
}

// Open performs the Virtual File open algorithm (spec.md §4.4). factory
// produces a fresh, private discreader.Reader for this file. pool is the
// shared worker pool; pass nil to force single-threaded decoding even for
// DST tracks.
func Open(factory discreader.Factory, isoPath string, area discreader.Area, track uint8, overlayStore *id3overlay.Store, decoderFactory dstdecoder.Factory, pool *mtpipeline.Pool) (f *File, err error) {
	reader, err := factory(isoPath)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.IO, fmt.Errorf("vfile: open disc reader: %w", err))
	}
	defer func() {
		if err != nil {
			reader.Close()
		}
	}()

	if err := reader.SelectArea(area); err != nil {
		return nil, sacderr.Wrap(sacderr.InvalidParameter, fmt.Errorf("vfile: select area %s: %w", area, err))
	}

	frameLength, err := reader.TrackFrameLength(track)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.InvalidParameter, fmt.Errorf("vfile: track frame length: %w", err))
	}
	startFrame, err := reader.TrackIndexStart(track, 1)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.InvalidParameter, fmt.Errorf("vfile: track index start: %w", err))
	}

	channels, err := reader.AreaChannelCount()
	if err != nil {
		return nil, sacderr.Wrap(sacderr.IO, fmt.Errorf("vfile: area channel count: %w", err))
	}
	sampleRate, err := reader.AreaSampleFrequency()
	if err != nil {
		return nil, sacderr.Wrap(sacderr.IO, fmt.Errorf("vfile: area sample frequency: %w", err))
	}
	format, err := reader.AreaFrameFormat()
	if err != nil {
		return nil, sacderr.Wrap(sacderr.IO, fmt.Errorf("vfile: area frame format: %w", err))
	}

	audioSize := dsf.AudioSize(frameLength, int(channels))
	sampleCount := dsf.SampleCount(frameLength)

	metadata, err := overlayStore.Get(reader, area, track)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.Format, fmt.Errorf("vfile: id3 overlay: %w", err))
	}

	header, info := dsf.Synthesize(int(channels), sampleRate, sampleCount, audioSize, uint64(len(metadata)))

	f = &File{
		reader:         reader,
		area:           area,
		track:          track,
		overlayStore:   overlayStore,
		decoderFactory: decoderFactory,
		format:         format,
		channels:       int(channels),
		startFrame:     startFrame,
		endFrame:       startFrame + frameLength,
		currentFrame:   startFrame,
		info:           info,
		header:         header,
		xform:          transform.New(int(channels), dsf.FrameBytes, dsf.BlockBytes),
	}

	if format == discreader.DST && pool != nil {
		f.useMT = true
		frameBytes := int(channels) * dsf.FrameBytes
		f.pipeline = mtpipeline.New(reader, decoderFactory, pool, format, frameBytes, frameBytes, f.startFrame, f.endFrame)
		f.pipeline.Start()
	} else {
		f.compressedBuf = make([]byte, int(channels)*dsf.FrameBytes)
		if format == discreader.DST {
			f.decodeScratch = make([]byte, int(channels)*dsf.FrameBytes)
		}
	}

	return f, nil
}

// Info returns the synthesized header's region layout.
func (f *File) Info() dsf.Info { return f.info }

// Tell reports the current position in the synthetic stream.
func (f *File) Tell() int64 { return int64(f.position) }

// Read implements io.Reader, dispatching across the header, audio, and
// metadata regions per spec.md §4.4's read dispatch. If some bytes have
// already been copied into p in this call before an error occurs, the
// partial count is returned with a nil error and the error is surfaced on
// the following call (spec.md §7).
func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, sacderr.Wrap(sacderr.NotOpen, fmt.Errorf("vfile: read on closed file"))
	}
	if f.pendingErr != nil {
		err := f.pendingErr
		f.pendingErr = nil
		return 0, err
	}

	H := f.info.HeaderEnd
	M := f.info.MetadataOff
	T := f.info.TotalSize

	total := 0
	for total < len(p) {
		switch {
		case f.position >= T:
			return total, nil
		case f.position < H:
			n := copy(p[total:], f.header[f.position:])
			total += n
			f.position += uint64(n)
		case f.position < M:
			remaining := M - f.position
			n, err := f.readAudio(p[total:], remaining)
			total += n
			f.position += uint64(n)
			if err != nil {
				if total > 0 {
					f.pendingErr = err
					return total, nil
				}
				return total, err
			}
			if n == 0 {
				if f.position < M {
					return total, sacderr.Wrap(sacderr.Read, fmt.Errorf("vfile: audio pipeline stalled before metadata offset"))
				}
			}
		default:
			n, err := f.readMetadata(p[total:])
			total += n
			f.position += uint64(n)
			if err != nil {
				if total > 0 {
					f.pendingErr = err
					return total, nil
				}
				return total, err
			}
			if n == 0 {
				return total, nil
			}
		}
	}
	return total, nil
}

func (f *File) readAudio(p []byte, remaining uint64) (int, error) {
	total := 0
	for total < len(p) && uint64(total) < remaining {
		if f.audioStagingPos < len(f.audioStaging) {
			// A transform chunk is frequently larger than the bytes left
			// before the metadata boundary (seek is byte-granular, not
			// block-aligned), so the copy must be clamped to remaining as
			// well as to len(p) or it spills staged audio past M.
			max := len(p) - total
			if left := int(remaining - uint64(total)); left < max {
				max = left
			}
			n := copy(p[total:total+max], f.audioStaging[f.audioStagingPos:])
			f.audioStagingPos += n
			total += n
			continue
		}

		if f.audioEOF {
			if !f.audioFlushed {
				f.audioFlushed = true
				if flushed := f.xform.Flush(); flushed != nil {
					f.audioStaging = flushed
					f.audioStagingPos = 0
					if f.seekSkipBytes > 0 {
						skip := min(f.seekSkipBytes, len(flushed))
						f.audioStagingPos = skip
						f.seekSkipBytes -= skip
					}
					continue
				}
			}
			break
		}

		eof, err := f.fetchAndFeed()
		if err != nil {
			return total, err
		}
		if eof {
			f.audioEOF = true
			continue
		}
		if f.seekSkipBytes > 0 {
			skip := f.seekSkipBytes
			if skip > len(f.audioStaging) {
				skip = len(f.audioStaging)
			}
			f.audioStagingPos = skip
			f.seekSkipBytes -= skip
		}
	}
	return total, nil
}

// fetchAndFeed pulls one more decoded frame (from the disc reader directly
// in ST mode, or from the MT pipeline's ordered queue) and feeds it to the
// transformer, refilling audioStaging. It reports eof=true once the track's
// frames are exhausted, without having produced new staging bytes.
func (f *File) fetchAndFeed() (eof bool, err error) {
	if f.useMT {
		res, err := f.pipeline.NextResult()
		if err != nil {
			return false, sacderr.Wrap(sacderr.Read, err)
		}
		if res.IsEOF {
			return true, nil
		}
		f.audioStaging = f.xform.Feed(res.Decoded.Bytes()[:res.DecodedLen])
		res.Decoded.Unref()
		f.audioStagingPos = 0
		return false, nil
	}

	if f.currentFrame >= f.endFrame {
		return true, nil
	}

	n, err := f.reader.GetSoundData(f.compressedBuf, f.currentFrame)
	if err != nil {
		return false, sacderr.Wrap(sacderr.Read, fmt.Errorf("vfile: read frame %d: %w", f.currentFrame, err))
	}
	frameBytes := f.compressedBuf[:n]

	if f.format == discreader.DST {
		dec := f.decoderFactory()
		decodedLen, err := dec.Decode(f.decodeScratch, frameBytes)
		if err != nil {
			return false, sacderr.Wrap(sacderr.DstDecode, fmt.Errorf("vfile: decode frame %d: %w", f.currentFrame, err))
		}
		frameBytes = f.decodeScratch[:decodedLen]
	}

	f.audioStaging = f.xform.Feed(frameBytes)
	f.audioStagingPos = 0
	f.currentFrame++
	return false, nil
}

func (f *File) readMetadata(p []byte) (int, error) {
	data, err := f.overlayStore.Get(f.reader, f.area, f.track)
	if err != nil {
		return 0, sacderr.Wrap(sacderr.Format, fmt.Errorf("vfile: id3 overlay: %w", err))
	}
	off := f.position - f.info.MetadataOff
	if off >= uint64(len(data)) {
		return 0, nil
	}
	return copy(p, data[off:]), nil
}

// Seek implements io.Seeker. A seek to the current position returns
// immediately without disturbing any in-flight MT pipeline state — this is
// performance-critical, since FUSE/WinFSP routinely seek before every read
// (spec.md §9).
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, sacderr.Wrap(sacderr.NotOpen, fmt.Errorf("vfile: seek on closed file"))
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = int64(f.position) + offset
	case io.SeekEnd:
		target = int64(f.info.TotalSize) + offset
	default:
		return 0, sacderr.Wrap(sacderr.InvalidParameter, fmt.Errorf("vfile: invalid whence %d", whence))
	}
	if target < 0 {
		return 0, sacderr.Wrap(sacderr.Seek, fmt.Errorf("vfile: negative seek target %d", target))
	}
	if uint64(target) > f.info.TotalSize {
		target = int64(f.info.TotalSize)
	}

	if uint64(target) == f.position {
		return target, nil
	}

	f.applySeek(uint64(target))
	return int64(f.position), nil
}

func (f *File) applySeek(p uint64) {
	f.audioStaging = nil
	f.audioStagingPos = 0
	f.seekSkipBytes = 0
	f.audioEOF = false
	f.audioFlushed = false
	f.pendingErr = nil
	f.xform.Reset()

	H := f.info.HeaderEnd
	M := f.info.MetadataOff

	switch {
	case p < H:
		f.currentFrame = f.startFrame
	case p < M:
		audioOffset := p - H
		outputPerGroup := uint64(dsf.BlocksPerAlignmentGroup) * dsf.BlockBytes * uint64(f.channels)
		group := audioOffset / outputPerGroup
		alignedFrame := f.startFrame + uint32(dsf.AlignmentGroupFrames)*uint32(group)
		if alignedFrame > f.endFrame {
			alignedFrame = f.endFrame
		}
		alignedOutputPos := group * outputPerGroup
		f.seekSkipBytes = int(audioOffset - alignedOutputPos)
		f.currentFrame = alignedFrame
	default:
		f.currentFrame = f.endFrame
	}

	if f.useMT {
		f.pipeline.Seek(f.currentFrame)
	}

	f.position = p
}

// Close releases the file's resources: the MT pipeline (if any, joined
// synchronously) and the private disc reader. Close is idempotent.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.pipeline != nil {
		f.pipeline.Close()
	}
	return f.reader.Close()
}

package mtpipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacdfs/sacdfs/discreader"
	fixturereader "github.com/sacdfs/sacdfs/discreader/fixture"
	dstfixture "github.com/sacdfs/sacdfs/dstdecoder/fixture"
)

const (
	testChannels  = 2
	testFrameSize = fixturereader.SACDFrameBytes
)

func rawFrame(frameNum uint32) []byte {
	return fixturereader.SynthesizeFrameForTest(testChannels, frameNum)
}

func newTestDisc(trackFrames uint32) *fixturereader.Disc {
	return &fixturereader.Disc{
		AlbumTitle: "Pipeline Test",
		Areas: map[discreader.Area]fixturereader.AreaSpec{
			discreader.AreaStereo: {
				Channels:   testChannels,
				SampleRate: 2822400,
				Format:     discreader.DST,
				Tracks: []fixturereader.Track{
					{StartFrame: 0, EndFrame: trackFrames - 1, Title: "Pipeline"},
				},
			},
		},
	}
}

func openTestReader(t *testing.T, disc *fixturereader.Disc) discreader.Reader {
	t.Helper()
	reader, err := fixturereader.NewFactory(disc)("ignored.iso")
	require.NoError(t, err)
	require.NoError(t, reader.SelectArea(discreader.AreaStereo))
	return reader
}

func TestPipelineSequentialDecodeMatchesRawFrames(t *testing.T) {
	const trackFrames = 40
	disc := newTestDisc(trackFrames)
	reader := openTestReader(t, disc)

	pool := NewPool(4)
	pipe := New(reader, dstfixture.NewFactory(), pool, discreader.DST,
		testChannels*testFrameSize, testChannels*testFrameSize, 0, trackFrames)
	pipe.Start()
	defer pipe.Close()

	for frameNum := uint32(0); frameNum < trackFrames; frameNum++ {
		res, err := pipe.NextResult()
		require.NoError(t, err)
		require.False(t, res.IsEOF)
		got := make([]byte, res.DecodedLen)
		copy(got, res.Decoded.Bytes()[:res.DecodedLen])
		res.Decoded.Unref()
		assert.Equal(t, rawFrame(frameNum), got, "frame %d", frameNum)
	}

	res, err := pipe.NextResult()
	require.NoError(t, err)
	assert.True(t, res.IsEOF)
}

func TestPipelineSeekDrainsAndResumesAtTarget(t *testing.T) {
	// spec.md §8 scenario 6: seek mid-stream must discard in-flight
	// results and resume delivery at the seek target.
	const trackFrames = 300
	disc := newTestDisc(trackFrames)
	reader := openTestReader(t, disc)

	pool := NewPool(4)
	pipe := New(reader, dstfixture.NewFactory(), pool, discreader.DST,
		testChannels*testFrameSize, testChannels*testFrameSize, 0, trackFrames)
	pipe.Start()
	defer pipe.Close()

	// Consume a handful of results so dispatch runs ahead into the queue.
	for i := 0; i < 5; i++ {
		res, err := pipe.NextResult()
		require.NoError(t, err)
		require.False(t, res.IsEOF)
		res.Decoded.Unref()
	}

	pipe.Seek(200)

	res, err := pipe.NextResult()
	require.NoError(t, err)
	require.False(t, res.IsEOF)
	got := make([]byte, res.DecodedLen)
	copy(got, res.Decoded.Bytes()[:res.DecodedLen])
	res.Decoded.Unref()
	assert.Equal(t, rawFrame(200), got, "post-seek frame must be the seek target, not a stale in-flight result")
}

func TestPipelineCloseIsSynchronousBarrier(t *testing.T) {
	const trackFrames = 10
	disc := newTestDisc(trackFrames)
	reader := openTestReader(t, disc)

	pool := NewPool(2)
	pipe := New(reader, dstfixture.NewFactory(), pool, discreader.DST,
		testChannels*testFrameSize, testChannels*testFrameSize, 0, trackFrames)
	pipe.Start()

	res, err := pipe.NextResult()
	require.NoError(t, err)
	res.Decoded.Unref()

	pipe.Close()
	_, err = pipe.NextResult()
	assert.Error(t, err, "NextResult after Close must report the pipeline closed")
}

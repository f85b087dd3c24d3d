package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacdfs/sacdfs/discreader"
	fixturereader "github.com/sacdfs/sacdfs/discreader/fixture"
	dstfixture "github.com/sacdfs/sacdfs/dstdecoder/fixture"
	"github.com/sacdfs/sacdfs/mtpipeline"
)

func TestRunOnceReadsWholeTrackST(t *testing.T) {
	disc := &fixturereader.Disc{
		AlbumTitle: "t",
		Areas: map[discreader.Area]fixturereader.AreaSpec{
			discreader.AreaStereo: {
				Channels:   2,
				SampleRate: 2822400,
				Format:     discreader.DST,
				Tracks:     []fixturereader.Track{{StartFrame: 0, EndFrame: 300, Title: "t"}},
			},
		},
	}
	factory := fixturereader.NewFactory(disc)

	_, total, _ := runOnce(factory, dstfixture.NewFactory(), nil)
	require.Greater(t, total, int64(0))

	_, mtTotal, _ := runOnce(factory, dstfixture.NewFactory(), mtpipeline.NewPool(4))
	assert.Equal(t, total, mtTotal)
}

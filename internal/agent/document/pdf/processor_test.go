package pdf

import (
	"context"
	"testing"

	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanProcess(t *testing.T) {
	p := NewProcessor(logger.NewTestLogger())
	assert.True(t, p.CanProcess("application/pdf"))
	assert.False(t, p.CanProcess("text/html"))
}

func TestProcessRejectsGarbage(t *testing.T) {
	p := NewProcessor(logger.NewTestLogger())
	segs, err := p.Process(context.Background(), []byte("definitely not a pdf"), nil)
	require.Error(t, err)
	assert.Nil(t, segs)
	assert.True(t, errors.Is(err, errors.ErrExtractionFailed))
}

func TestPageCountRejectsGarbage(t *testing.T) {
	_, err := PageCount([]byte("%PDF-garbage"))
	assert.Error(t, err)
}

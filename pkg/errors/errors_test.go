package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkKeepsCauseAndCategory(t *testing.T) {
	cause := New("connection reset")
	err := Classify(Wrap(cause, "download source"), ErrFetchFailed)

	assert.True(t, Is(err, ErrFetchFailed))
	assert.True(t, Is(err, cause))
	assert.False(t, Is(err, ErrStorageFailed))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestTimeoutIsAlsoFetchFailure(t *testing.T) {
	err := Classify(Mark(New("deadline"), ErrTimeout), ErrFetchFailed)
	assert.True(t, Is(err, ErrTimeout))
	assert.True(t, Is(err, ErrFetchFailed))
}

func TestHelpers(t *testing.T) {
	assert.True(t, IsNotFound(NotFoundf("document %s not found", "abc")))
	assert.False(t, IsNotFound(nil))
	assert.True(t, IsInvalid(Invalidf("bad url")))
	assert.True(t, IsInvalid(Mark(New("cron"), ErrSchedulingInvalid)))
	assert.Nil(t, Classify(nil, ErrStorageFailed))
}

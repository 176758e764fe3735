package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordUser(t *testing.T) {
	before := testutil.ToFloat64(usersProcessed.WithLabelValues("friend", "resolved"))
	RecordUser("friend", "resolved")
	RecordUser("friend", "resolved")
	assert.Equal(t, before+2, testutil.ToFloat64(usersProcessed.WithLabelValues("friend", "resolved")))
}

func TestSetPending(t *testing.T) {
	SetPending("follower", 42)
	assert.Equal(t, 42.0, testutil.ToFloat64(pendingUsers.WithLabelValues("follower")))
}

func TestRecordCheckpointStatus(t *testing.T) {
	ok := testutil.ToFloat64(checkpointSaves.WithLabelValues("success"))
	bad := testutil.ToFloat64(checkpointSaves.WithLabelValues("error"))

	RecordCheckpoint(time.Millisecond, nil)
	RecordCheckpoint(time.Millisecond, errors.New("disk full"))

	assert.Equal(t, ok+1, testutil.ToFloat64(checkpointSaves.WithLabelValues("success")))
	assert.Equal(t, bad+1, testutil.ToFloat64(checkpointSaves.WithLabelValues("error")))
}

func TestRecordTile(t *testing.T) {
	before := testutil.ToFloat64(tilesWritten.WithLabelValues("adj", "transposed"))
	RecordTile("adj", "transposed")
	assert.Equal(t, before+1, testutil.ToFloat64(tilesWritten.WithLabelValues("adj", "transposed")))
}

package mqtt

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) Recover()            {}
func (r *recordMonitor) Flush(time.Duration) {}

func TestSendScheduleErrorCaptured(t *testing.T) {
	fail := fmt.Errorf("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail}}
	useMock(t, mc)
	mon := &recordMonitor{}
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1}, WithMonitor(mon))
	require.NoError(t, err)

	_, err = cli.SendSchedule(schedule("T1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fail)
	require.Error(t, mon.err)
	assert.Equal(t, "T1", mon.tags["team_id"])
	assert.Equal(t, "2025-03-10", mon.tags["date"])
	assert.Equal(t, "mqtt", mon.tags["module"])
	assert.Empty(t, cli.ackChans)
}

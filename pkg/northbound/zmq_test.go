package northbound

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestZMQRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	port := freePort(t)
	router := zmq4.NewRouter(ctx, zmq4.WithID(zmq4.SocketIdentity("server")))
	t.Cleanup(func() { _ = router.Close() })
	require.NoError(t, router.Listen(fmt.Sprintf("tcp://127.0.0.1:%d", port)))

	s, err := ZMQTransport{}.Connect(ctx, Endpoint{
		Host:        "127.0.0.1",
		Port:        port,
		Identity:    "test-0",
		RecvTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	start, err := EncodeStart(StartRequest{Identity: "test-0", Env: "nqos_split"})
	require.NoError(t, err)
	require.NoError(t, s.Send(ctx, start))

	msg, err := router.Recv()
	require.NoError(t, err)
	require.Len(t, msg.Frames, 2)
	assert.Equal(t, "test-0", string(msg.Frames[0]))

	req, err := decodeStart(msg.Frames[1])
	require.NoError(t, err)
	assert.Equal(t, "nqos_split", req.Env)

	reply, err := EncodeReport(MeasurementReport{
		Valid:   true,
		Records: []Record{{Name: "rate", CID: "All", Entities: []int{0}, Values: []float64{5}}},
	})
	require.NoError(t, err)
	require.NoError(t, router.Send(zmq4.NewMsgFrom(msg.Frames[0], reply)))

	frame, err := s.Recv(ctx)
	require.NoError(t, err)
	report, err := DecodeReport(frame)
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, "rate::All", report.Records[0].Key())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestZMQRecvTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	port := freePort(t)
	router := zmq4.NewRouter(ctx)
	t.Cleanup(func() { _ = router.Close() })
	require.NoError(t, router.Listen(fmt.Sprintf("tcp://127.0.0.1:%d", port)))

	s, err := ZMQTransport{}.Connect(ctx, Endpoint{
		Host:        "127.0.0.1",
		Port:        port,
		Identity:    "test-0",
		RecvTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Recv(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, s.Usable())
}

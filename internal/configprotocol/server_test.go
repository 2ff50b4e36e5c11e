package configprotocol

import (
	"context"
	"testing"
	"time"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/configprotocol/messages"
	"github.com/openDAQ/openDAQ-sub000/internal/device"
	"github.com/openDAQ/openDAQ-sub000/internal/signal"
	"github.com/openDAQ/openDAQ-sub000/internal/supervisor"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T) (*component.Instance, *device.Device, *signal.Signal) {
	t.Helper()
	inst := component.NewInstance("root")
	dev := device.NewDevice("dev0", inst.Bus, device.Info{Name: "Test device"})
	require.NoError(t, inst.Root.AddChild(dev.Component))
	require.NoError(t, dev.Props.AddProperty(component.Property{Name: "Gain", ValueKind: component.KindFloat, Default: 1.0}))

	ch, err := dev.AddChannel("ch0")
	require.NoError(t, err)
	sig, err := ch.AddSignal("Sig0", true)
	require.NoError(t, err)
	sig.SetDescriptor(&signal.DataDescriptor{SampleType: signal.SampleFloat64, Rule: signal.RuleExplicit})
	return inst, dev, sig
}

var testServerPort = 18743

func startTestServer(t *testing.T, inst *component.Instance) string {
	t.Helper()
	testServerPort++
	cfg := DefaultServerConfig()
	cfg.Transport.ListenAddr = "127.0.0.1:" + itoaTest(testServerPort)
	cfg.Transport.Path = "/cp"

	srv := NewServer(inst.Root, inst.Types, nil, cfg)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return cfg.Transport.ListenAddr
}

func itoaTest(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func dialTestClient(t *testing.T, addr string) *Client {
	t.Helper()
	cfg := DefaultClientConfig()
	cfg.Transport.Path = "/cp"
	var cli *Client
	var err error
	for i := 0; i < 40; i++ {
		cli, err = Connect(addr, "/cp", cfg, nil)
		if err == nil {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	require.NoError(t, err)
	t.Cleanup(func() { cli.Close() })
	return cli
}

func TestHandshakeNegotiatesVersion(t *testing.T) {
	inst, _, _ := newTestTree(t)
	addr := startTestServer(t, inst)
	cli := dialTestClient(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := cli.Handshake(ctx, supervisor.ViewOnly, false, "test-host", "", "")
	require.NoError(t, err)
	require.Equal(t, 3, res.NegotiatedVersion)
	require.Equal(t, res.NegotiatedVersion, cli.Version())
}

func TestGetComponentTreeSnapshotReflectsDevice(t *testing.T) {
	inst, _, _ := newTestTree(t)
	addr := startTestServer(t, inst)
	cli := dialTestClient(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := cli.Handshake(ctx, supervisor.ViewOnly, false, "h", "", "")
	require.NoError(t, err)

	snap, err := cli.GetComponentTreeSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Root.Children, 1)
	require.Equal(t, "dev0", snap.Root.Children[0].LocalID)
}

func TestSetAndGetPropertyValueRoundTrips(t *testing.T) {
	inst, dev, _ := newTestTree(t)
	addr := startTestServer(t, inst)
	cli := dialTestClient(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := cli.Handshake(ctx, supervisor.Control, false, "h", "", "")
	require.NoError(t, err)

	devRel := "/" + dev.LocalID()
	require.NoError(t, cli.SetPropertyValue(ctx, devRel, "Gain", 2.5, false))

	val, err := cli.GetPropertyValue(ctx, devRel, "Gain")
	require.NoError(t, err)
	require.InDelta(t, 2.5, val, 0.0001)
}

func TestLockDeviceBlocksOtherClientsWrite(t *testing.T) {
	inst, dev, _ := newTestTree(t)
	addr := startTestServer(t, inst)
	owner := dialTestClient(t, addr)
	other := dialTestClient(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := owner.Handshake(ctx, supervisor.Control, false, "owner", "", "")
	require.NoError(t, err)
	_, err = other.Handshake(ctx, supervisor.Control, false, "other", "", "")
	require.NoError(t, err)

	devRel := "/" + dev.LocalID()
	require.NoError(t, owner.LockDevice(ctx, devRel, "owner-user"))

	err = other.SetPropertyValue(ctx, devRel, "Gain", 9.0, false)
	require.Error(t, err)
}

func TestSubscribeDeliversDataPacket(t *testing.T) {
	inst, _, sig := newTestTree(t)
	addr := startTestServer(t, inst)
	cli := dialTestClient(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := cli.Handshake(ctx, supervisor.ViewOnly, false, "h", "", "")
	require.NoError(t, err)

	received := make(chan messages.PacketNotification, 4)
	cli.OnPacket = func(n messages.PacketNotification) { received <- n }

	sigRel := RelativeID(inst.Root, sig.Component)
	require.NoError(t, cli.Subscribe(ctx, sigRel))

	sig.Send(&signal.DataPacket{Descriptor: sig.Descriptor(), SampleCount: 1, Data: make([]byte, 8)})

	select {
	case n := <-received:
		require.Equal(t, sigRel, n.SignalGlobalID)
		require.False(t, n.IsEvent)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet notification")
	}
}

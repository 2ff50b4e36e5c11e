package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/configprotocol"
	"github.com/openDAQ/openDAQ-sub000/internal/device"
	"github.com/openDAQ/openDAQ-sub000/internal/module"
	"github.com/openDAQ/openDAQ-sub000/internal/signal"
	"github.com/openDAQ/openDAQ-sub000/internal/supervisor"
	"github.com/stretchr/testify/require"
)

func startMirrorTestServerWithManager(t *testing.T, inst *component.Instance) string {
	t.Helper()
	mirrorTestPort++
	cfg := configprotocol.DefaultServerConfig()
	cfg.Transport.ListenAddr = "127.0.0.1:" + itoaMirrorTest(mirrorTestPort)
	cfg.Transport.Path = "/cp"

	mgr := module.NewManager()
	mgr.AddModule(module.NewMockModule())
	srv := configprotocol.NewServer(inst.Root, inst.Types, mgr, cfg)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return cfg.Transport.ListenAddr
}

// Reconnect against an equivalent server replays the client's config:
// function-block adds first, then property writes, then subscriptions
// (spec §4.5 RestoreClientConfigOnReconnect, §8 S6).
func TestReconnectRestoresClientConfig(t *testing.T) {
	inst1, dev1, sig1 := newMirrorTestTree(t)
	addr1 := startMirrorTestServerWithManager(t, inst1)
	cli := dialMirrorTestClient(t, addr1)
	mount := newMirrorMount(t)
	status := supervisor.NewStatusContainer(nil, "/localroot", addr1)

	eng := NewEngine(cli, mount, nil, status, nil)
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, eng.Connect(ctx, supervisor.Control, "restore-test"))
	require.Equal(t, supervisor.StatusConnected, status.ConfigurationStatus())

	devRel := configprotocol.RelativeID(inst1.Root, dev1.Component)
	sigRel := configprotocol.RelativeID(inst1.Root, sig1.Component)

	localID, err := eng.AddFunctionBlock(ctx, devRel, "mock_fb_uid")
	require.NoError(t, err)
	require.Equal(t, "mock_fb_uid_1", localID)
	require.NoError(t, eng.SetPropertyValue(ctx, devRel, "Gain", 7.5))
	require.NoError(t, eng.Subscribe(ctx, sigRel))

	// server goes away
	cli.Close()
	status.Set(supervisor.ConfigurationStatusName, supervisor.StatusReconnecting, "")

	// an equivalent server comes back under a new address
	inst2, dev2, _ := newMirrorTestTree(t)
	addr2 := startMirrorTestServerWithManager(t, inst2)
	newClient := dialMirrorTestClient(t, addr2)

	require.NoError(t, eng.Reconnect(ctx, newClient, supervisor.Control, "restore-test"))
	require.Equal(t, supervisor.StatusConnected, status.ConfigurationStatus())

	fbs := dev2.FunctionBlocks()
	require.Len(t, fbs, 1)
	require.Equal(t, "mock_fb_uid", fbs[0].TypeID())

	val, err := dev2.Props.GetPropertyValue("Gain")
	require.NoError(t, err)
	require.InDelta(t, 7.5, val.(float64), 0.0001)

	// the mirrored tree eventually reflects the restored function block
	deadline := time.Now().Add(2 * time.Second)
	var found bool
	for time.Now().Before(deadline) {
		if root := eng.Root(); root != nil {
			if dev0, ok := root.Child("dev0"); ok {
				if fbFolder, ok := dev0.Child("FB"); ok {
					if _, ok := fbFolder.Child("mock_fb_uid_1"); ok {
						found = true
						break
					}
				}
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.True(t, found, "mirror never picked up the restored function block")
}

// A descriptor the transport cannot carry leaves the mirrored signal in
// the tree with a nil descriptor; once the server restores a supported
// one, the mirror follows (spec §4.5, §8 S8).
func TestMirrorKeepsSignalWithUnsupportedDescriptor(t *testing.T) {
	inst := component.NewInstance("root")
	dev := device.NewDevice("dev0", inst.Bus, device.Info{Name: "Test device"})
	require.NoError(t, inst.Root.AddChild(dev.Component))
	ch, err := dev.AddChannel("ch0")
	require.NoError(t, err)
	sig, err := ch.AddSignal("Sig0", true)
	require.NoError(t, err)
	sig.SetDescriptor(&signal.DataDescriptor{SampleType: signal.SampleInvalid})

	addr := startMirrorTestServer(t, inst)
	cli := dialMirrorTestClient(t, addr)
	mount := newMirrorMount(t)

	eng := NewEngine(cli, mount, nil, nil, nil)
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, eng.Connect(ctx, supervisor.ViewOnly, "mirror-test"))

	mirroredSig := childSignal(t, eng.Root(), "ch0", "Sig0")
	require.Nil(t, mirroredSig.Descriptor(), "unsupported descriptor must mirror as nil")

	sig.SetDescriptor(&signal.DataDescriptor{SampleType: signal.SampleFloat64, Rule: signal.RuleExplicit})

	deadline := time.Now().Add(2 * time.Second)
	var restored *signal.DataDescriptor
	for time.Now().Before(deadline) {
		if restored = mirroredSig.Descriptor(); restored != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NotNil(t, restored)
	require.Equal(t, signal.SampleFloat64, restored.SampleType)
}

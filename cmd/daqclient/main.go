// Command daqclient dials a ConfigProtocol server and mirrors its
// component tree locally (spec §4.5), staying attached across link
// drops via internal/supervisor's reconnect loop. Bootstrap flags use
// stdlib flag for the same reason as cmd/daqserver: there is no
// supervisor/registration surface here for the teacher's
// pkg/service.BaseService framework to plug into.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/configprotocol"
	"github.com/openDAQ/openDAQ-sub000/internal/mirror"
	"github.com/openDAQ/openDAQ-sub000/internal/supervisor"
	"github.com/openDAQ/openDAQ-sub000/pkg/logger"
)

func main() {
	var (
		addr       = flag.String("addr", "localhost:7417", "host:port of the ConfigProtocol server")
		path       = flag.String("path", "/configprotocol", "websocket path the server serves on")
		mountID    = flag.String("mount-id", "daqclient", "local id of the root instance the mirror attaches under")
		hostName   = flag.String("host-name", "daqclient", "host name reported during handshake")
		clientType = flag.String("client-type", "ViewOnly", "ViewOnly | Control | ExclusiveControl")
	)
	flag.Parse()

	log := logger.New("daqclient")

	inst := component.NewInstance(*mountID)
	ct := supervisor.ClientType(*clientType)
	status := supervisor.NewStatusContainer(inst.Root.Bus(), inst.Root.GlobalID(), *addr)

	cli, err := configprotocol.Connect(*addr, *path, configprotocol.DefaultClientConfig(), logger.New("daqclient.configprotocol"))
	if err != nil {
		log.Errorf("failed to connect to %s%s: %v", *addr, *path, err)
		os.Exit(1)
	}

	eng := mirror.NewEngine(cli, inst.Root, inst.Types, status, logger.New("daqclient.mirror"))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Connect(ctx, ct, *hostName); err != nil {
		log.Errorf("handshake/resync against %s%s failed: %v", *addr, *path, err)
		os.Exit(1)
	}
	status.Set(supervisor.ConfigurationStatusName, supervisor.StatusConnected, "")
	log.Infof("mirroring %s%s under %s", *addr, *path, inst.Root.GlobalID())

	var reconnect *supervisor.ReconnectLoop
	reconnect = supervisor.NewReconnectLoop(0, status, func(attemptCtx context.Context) error {
		newClient, err := configprotocol.Connect(*addr, *path, configprotocol.DefaultClientConfig(), logger.New("daqclient.configprotocol"))
		if err != nil {
			return err
		}
		if err := eng.Reconnect(attemptCtx, newClient, ct, *hostName); err != nil {
			newClient.Close()
			return err
		}
		go watchDisconnect(ctx, newClient, log, reconnect.NotifyLinkLost)
		return nil
	}, logger.New("daqclient.supervisor"))

	go watchDisconnect(ctx, cli, log, reconnect.NotifyLinkLost)

	<-ctx.Done()
	stop()
	log.Infof("shutting down")
	eng.Close()
	reconnect.Stop()
	cli.Close()
}

// watchDisconnect waits for client's connection to drop (or ctx to be
// cancelled, in which case it is a clean shutdown, not a link loss) and
// triggers the reconnect loop.
func watchDisconnect(ctx context.Context, client *configprotocol.Client, log *logger.Logger, notifyLinkLost func()) {
	select {
	case <-client.Done():
		select {
		case <-ctx.Done():
			return
		default:
		}
		log.Warnf("lost connection to server, reconnecting")
		notifyLinkLost()
	case <-ctx.Done():
	}
}

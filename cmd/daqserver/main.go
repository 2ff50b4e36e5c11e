// Command daqserver wires a local component tree backed by the mock
// module behind a native ConfigProtocol server, the shape a real
// device-hosting process would take (spec §4.3/§4.4). It uses stdlib
// flag for its handful of bootstrap flags rather than a CLI framework:
// §1 lists GUI/CLI front-ends as external collaborators out of scope
// for the core, and there is no supervisor/registration surface here
// for a framework like the teacher's pkg/service.BaseService to plug
// into (see DESIGN.md's dropped-dependencies note).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/configprotocol"
	"github.com/openDAQ/openDAQ-sub000/internal/module"
	"github.com/openDAQ/openDAQ-sub000/internal/persist"
	"github.com/openDAQ/openDAQ-sub000/pkg/logger"
)

func main() {
	var (
		listenAddr = flag.String("listen", ":7417", "address the ConfigProtocol server listens on")
		path       = flag.String("path", "/configprotocol", "websocket path the server serves on")
		instanceID = flag.String("instance-id", "daqserver", "local id of the root instance")
		devices    = flag.String("devices", "daqmock://dev0", "comma-separated connect strings to add at startup")
		stateFile  = flag.String("state", "", "path to a persisted state file to load at startup and save at shutdown")
		reAdd      = flag.Bool("readd-devices", true, "re-add a device via the module manager when Load finds it missing")
	)
	flag.Parse()

	log := logger.New("daqserver")

	inst := component.NewInstance(*instanceID)
	mgr := module.NewManager()
	mgr.AddModule(module.NewMockModule())

	if *stateFile != "" {
		if blob, err := os.ReadFile(*stateFile); err == nil {
			if err := persist.Load(inst, blob, mgr, persist.LoadOptions{ReAddDevicesEnabled: *reAdd}); err != nil {
				log.Errorf("failed to load persisted state from %s: %v", *stateFile, err)
			} else {
				log.Infof("restored persisted state from %s", *stateFile)
			}
		} else if !os.IsNotExist(err) {
			log.Errorf("failed to read persisted state from %s: %v", *stateFile, err)
		}
	}

	for _, connStr := range splitNonEmpty(*devices) {
		dev, attachments, err := mgr.AddDevice(inst.Root, connStr, module.CreateDefaultAddDeviceConfig())
		if err != nil {
			log.Errorf("failed to add device %q: %v", connStr, err)
			continue
		}
		log.Infof("added device %q at %s (%d streaming candidates)", connStr, dev.GlobalID(), len(attachments))
	}

	cfg := configprotocol.DefaultServerConfig()
	cfg.Transport.ListenAddr = *listenAddr
	cfg.Transport.Path = *path

	srv := configprotocol.NewServer(inst.Root, inst.Types, mgr, cfg)
	if err := srv.Start(); err != nil {
		log.Errorf("failed to start ConfigProtocol server: %v", err)
		os.Exit(1)
	}
	log.Infof("ConfigProtocol server listening on %s%s", *listenAddr, *path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	stop()

	log.Infof("shutting down")
	if *stateFile != "" {
		blob, err := persist.Save(inst)
		if err != nil {
			log.Errorf("failed to encode persisted state: %v", err)
		} else if err := os.WriteFile(*stateFile, blob, 0o644); err != nil {
			log.Errorf("failed to write persisted state to %s: %v", *stateFile, err)
		} else {
			log.Infof("saved persisted state to %s", *stateFile)
		}
	}
	if err := srv.Stop(); err != nil {
		log.Errorf("error stopping ConfigProtocol server: %v", err)
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

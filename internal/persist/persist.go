// Package persist implements save/load of an Instance's configuration
// as a single JSON blob (spec §6 "Persisted state layout"): instance
// local id, TypeManager contents, every device's connection string,
// every function block's type id and local id, every component's
// non-read-only property values, and every InputPort<->Signal
// connection by global id. Grounded on the teacher's
// services/mesh/internal/mesh/state_machine.go Snapshot/Restore shape
// (copy state out under a lock, marshal whole, restore whole on load)
// adapted from a flat KV map to a component tree walk.
package persist

import (
	"encoding/json"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/configprotocol"
	"github.com/openDAQ/openDAQ-sub000/internal/device"
	"github.com/openDAQ/openDAQ-sub000/internal/module"
	"github.com/openDAQ/openDAQ-sub000/internal/signal"
	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
)

// restoredConnectionCapacity bounds a connection restored by Load,
// matching the capacity the mirror engine and the ConfigProtocol
// server's own Subscribe path hand out for a freshly wired connection.
const restoredConnectionCapacity = 1024

type typeRecord struct {
	Kind    string   `json:"kind"`
	Name    string   `json:"name"`
	Fields  []string `json:"fields,omitempty"`
	Members []string `json:"members,omitempty"`
	Parent  string   `json:"parent,omitempty"`
}

type deviceRecord struct {
	GlobalID         string `json:"globalId"`
	ConnectionString string `json:"connectionString"`
}

type functionBlockRecord struct {
	GlobalID       string `json:"globalId"`
	ParentGlobalID string `json:"parentGlobalId"`
	TypeID         string `json:"typeId"`
	LocalID        string `json:"localId"`
}

type propertyRecord struct {
	ComponentGlobalID string      `json:"componentGlobalId"`
	Name              string      `json:"name"`
	Value             interface{} `json:"value"`
}

type connectionRecord struct {
	PortGlobalID   string `json:"portGlobalId"`
	SignalGlobalID string `json:"signalGlobalId"`
}

// state is the on-disk/on-wire shape of a saved configuration. Every
// *GlobalID field is expressed relative to the saved instance's root
// (configprotocol.RelativeID's convention), so a load into an instance
// whose root carries a different local id still rebases correctly.
type state struct {
	InstanceLocalID string                `json:"instanceLocalId"`
	Types           []typeRecord          `json:"types,omitempty"`
	Devices         []deviceRecord        `json:"devices,omitempty"`
	FunctionBlocks  []functionBlockRecord `json:"functionBlocks,omitempty"`
	Properties      []propertyRecord      `json:"properties,omitempty"`
	Connections     []connectionRecord    `json:"connections,omitempty"`
}

// Save serializes inst's entire tree into a JSON blob.
func Save(inst *component.Instance) ([]byte, error) {
	st := state{InstanceLocalID: inst.Root.LocalID()}

	if inst.Types != nil {
		for _, t := range inst.Types.Types() {
			st.Types = append(st.Types, typeRecord{
				Kind:    string(t.Kind),
				Name:    t.Name,
				Fields:  t.Fields,
				Members: t.Members,
				Parent:  t.Parent,
			})
		}
	}

	walkSave(&st, inst.Root, inst.Root)

	blob, err := json.MarshalIndent(&st, "", "  ")
	if err != nil {
		return nil, daqerr.Wrap(daqerr.InvalidValue, inst.Root.GlobalID(), err, "failed to encode persisted state")
	}
	return blob, nil
}

func walkSave(st *state, root, c *component.Component) {
	collectProperties(st, root, c)

	switch self := c.Self().(type) {
	case *device.Device:
		st.Devices = append(st.Devices, deviceRecord{
			GlobalID:         configprotocol.RelativeID(root, c),
			ConnectionString: self.Info().ConnectionString,
		})
	case *device.FunctionBlock:
		st.FunctionBlocks = append(st.FunctionBlocks, functionBlockRecord{
			GlobalID:       configprotocol.RelativeID(root, c),
			ParentGlobalID: configprotocol.RelativeID(root, functionBlockOwner(c)),
			TypeID:         self.TypeID(),
			LocalID:        self.LocalID(),
		})
	case *signal.InputPort:
		if sig := self.ConnectedSignal(); sig != nil {
			st.Connections = append(st.Connections, connectionRecord{
				PortGlobalID:   configprotocol.RelativeID(root, c),
				SignalGlobalID: configprotocol.RelativeID(root, sig.Component),
			})
		}
	}

	for _, child := range c.Children() {
		walkSave(st, root, child)
	}
}

// functionBlockOwner returns the device or function block that owns
// fbNode, skipping over the intervening well-known "FB" folder (spec
// §3 well-known folders).
func functionBlockOwner(fbNode *component.Component) *component.Component {
	folder := fbNode.Parent()
	if folder == nil {
		return nil
	}
	return folder.Parent()
}

func collectProperties(st *state, root, c *component.Component) {
	for _, desc := range c.Props.Properties() {
		if desc.ReadOnly || desc.ValueKind == component.KindFunction || desc.ValueKind == component.KindProcedure {
			continue
		}
		val, err := c.Props.GetPropertyValue(desc.Name)
		if err != nil {
			continue
		}
		st.Properties = append(st.Properties, propertyRecord{
			ComponentGlobalID: configprotocol.RelativeID(root, c),
			Name:              desc.Name,
			Value:             val,
		})
	}
}

// LoadOptions controls the merge behavior of Load (spec §6
// "load is a merge").
type LoadOptions struct {
	// ReAddDevicesEnabled permits Load to create a device via mgr when
	// no matching device already exists at the saved path.
	ReAddDevicesEnabled bool
}

// Load applies a previously Saved blob onto inst. A device already
// present at the saved path with a matching connection string is left
// alone (its properties are merged in below); one that is missing is
// re-added through mgr only if opts.ReAddDevicesEnabled. Function
// blocks are recreated through mgr under their saved parent with their
// exact saved local id. Properties and InputPort<->Signal connections
// are restored only after every device and function block record has
// been processed, so a connection topology that forms a cycle (spec §8
// S4) still resolves completely regardless of record order.
func Load(inst *component.Instance, blob []byte, mgr *module.Manager, opts LoadOptions) error {
	var st state
	if err := json.Unmarshal(blob, &st); err != nil {
		return daqerr.Wrap(daqerr.InvalidValue, inst.Root.GlobalID(), err, "failed to decode persisted state")
	}

	if inst.Types != nil {
		for _, t := range st.Types {
			if inst.Types.HasType(t.Name) {
				continue
			}
			inst.Types.AddType(&component.TypeDef{
				Kind:    component.TypeKind(t.Kind),
				Name:    t.Name,
				Fields:  t.Fields,
				Members: t.Members,
				Parent:  t.Parent,
			})
		}
	}

	for _, dr := range st.Devices {
		if err := loadDevice(inst, dr, mgr, opts); err != nil {
			return err
		}
	}
	for _, fr := range st.FunctionBlocks {
		if err := loadFunctionBlock(inst, fr, mgr); err != nil {
			return err
		}
	}
	for _, pr := range st.Properties {
		loadProperty(inst, pr)
	}
	for _, cr := range st.Connections {
		loadConnection(inst, cr)
	}
	return nil
}

func loadDevice(inst *component.Instance, dr deviceRecord, mgr *module.Manager, opts LoadOptions) error {
	if existing, ok := configprotocol.Resolve(inst.Root, dr.GlobalID); ok {
		if dev, ok := existing.Self().(*device.Device); ok && dev.Info().ConnectionString == dr.ConnectionString {
			return nil
		}
	}
	if !opts.ReAddDevicesEnabled || mgr == nil {
		return nil
	}
	dev, _, err := mgr.AddDevice(inst.Root, dr.ConnectionString, module.CreateDefaultAddDeviceConfig())
	if err != nil {
		return daqerr.Wrap(daqerr.NotFound, dr.GlobalID, err, "failed to re-add device on load")
	}
	_ = dev
	return nil
}

func loadFunctionBlock(inst *component.Instance, fr functionBlockRecord, mgr *module.Manager) error {
	if _, ok := configprotocol.Resolve(inst.Root, fr.GlobalID); ok {
		return nil
	}
	if mgr == nil {
		return nil
	}
	parent, ok := configprotocol.Resolve(inst.Root, fr.ParentGlobalID)
	if !ok {
		return daqerr.Newf(daqerr.NotFound, fr.ParentGlobalID, "function block parent not found while restoring %q", fr.GlobalID)
	}

	switch p := parent.Self().(type) {
	case *device.Device:
		fb, err := mgr.CreateFunctionBlock(fr.TypeID, fr.LocalID, inst.Root.Bus())
		if err != nil {
			return err
		}
		return p.AttachRestoredFunctionBlock(fb)
	case *device.FunctionBlock:
		fb, err := mgr.CreateFunctionBlock(fr.TypeID, fr.LocalID, inst.Root.Bus())
		if err != nil {
			return err
		}
		return p.AddNestedFunctionBlock(fb)
	default:
		return daqerr.Newf(daqerr.InvalidParameter, fr.ParentGlobalID, "function block parent %q is neither a device nor a function block", fr.ParentGlobalID)
	}
}

func loadProperty(inst *component.Instance, pr propertyRecord) {
	target, ok := configprotocol.Resolve(inst.Root, pr.ComponentGlobalID)
	if !ok {
		return
	}
	if !target.Props.HasProperty(pr.Name) {
		return
	}
	_ = target.Props.SetPropertyValue(pr.Name, pr.Value, true)
}

func loadConnection(inst *component.Instance, cr connectionRecord) {
	portNode, ok := configprotocol.Resolve(inst.Root, cr.PortGlobalID)
	if !ok {
		return
	}
	port, ok := portNode.Self().(*signal.InputPort)
	if !ok || port.ConnectedSignal() != nil {
		return
	}
	sigNode, ok := configprotocol.Resolve(inst.Root, cr.SignalGlobalID)
	if !ok {
		return
	}
	sig, ok := sigNode.Self().(*signal.Signal)
	if !ok {
		return
	}
	_ = port.Connect(sig, restoredConnectionCapacity, signal.OverflowDropOldest)
}

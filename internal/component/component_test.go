package component

import (
	"testing"

	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
	"github.com/stretchr/testify/require"
)

func TestGlobalIDAndUniqueSiblings(t *testing.T) {
	inst := NewInstance("root")
	dev, err := EnsureFolder(inst.Root, "Dev")
	require.NoError(t, err)

	child := NewComponent(KindFolder, "phys_device", inst.Bus, nil)
	require.NoError(t, dev.AddChild(child))
	require.Equal(t, "/root/Dev/phys_device", child.GlobalID())

	dup := NewComponent(KindFolder, "phys_device", inst.Bus, nil)
	err = dev.AddChild(dup)
	require.Error(t, err)
	require.True(t, daqerr.Is(err, daqerr.DuplicateItem))
}

func TestRemovedIsMonotonicAndRecursive(t *testing.T) {
	inst := NewInstance("root")
	parent := NewComponent(KindFolder, "fb", inst.Bus, nil)
	require.NoError(t, inst.Root.AddChild(parent))
	child := NewComponent(KindFolder, "sig", inst.Bus, nil)
	require.NoError(t, parent.AddChild(child))

	require.NoError(t, inst.Root.RemoveChild("fb"))
	require.True(t, parent.Removed())
	require.True(t, child.Removed())

	err := parent.SetActive(false)
	require.Error(t, err)
	require.True(t, daqerr.Is(err, daqerr.ComponentRemoved))

	// idempotent second removal
	err = inst.Root.RemoveChild("fb")
	require.Error(t, err)
	require.True(t, daqerr.Is(err, daqerr.NotFound))
}

type removeTracker struct {
	*Component
	removed bool
}

func (r *removeTracker) OnRemove() { r.removed = true }

func TestRemoveChildCallsRemoverHook(t *testing.T) {
	inst := NewInstance("root")
	tracked := &removeTracker{}
	tracked.Component = NewComponent(KindFolder, "sig", inst.Bus, tracked)
	require.NoError(t, inst.Root.AddChild(tracked.Component))

	require.NoError(t, inst.Root.RemoveChild("sig"))
	require.True(t, tracked.removed)
}

func TestIDAllocatorRecyclesLastFreedSuffix(t *testing.T) {
	a := NewIDAllocator("mock_fb_uid")
	ids := make([]string, 4)
	for i := range ids {
		ids[i] = a.Allocate()
	}
	require.Equal(t, []string{"mock_fb_uid_1", "mock_fb_uid_2", "mock_fb_uid_3", "mock_fb_uid_4"}, ids)

	a.Release("mock_fb_uid_1")
	a.Release("mock_fb_uid_2")
	a.Release("mock_fb_uid_4")

	next := a.Allocate()
	require.Equal(t, "mock_fb_uid_4", next)
	require.Equal(t, []int{3, 4}, a.InUse())
}

func TestPropertySetGetValidatorAndReadOnly(t *testing.T) {
	inst := NewInstance("root")
	c := NewComponent(KindFolder, "thing", inst.Bus, nil)
	require.NoError(t, inst.Root.AddChild(c))

	require.NoError(t, c.Props.AddProperty(Property{Name: "Gain", ValueKind: KindFloat, Default: 1.0,
		ValidatorExpr: MustCompile("Gain >= 0 && Gain <= 10")}))
	require.NoError(t, c.Props.AddProperty(Property{Name: "Model", ValueKind: KindString, Default: "X1", ReadOnly: true}))

	require.NoError(t, c.Props.SetPropertyValue("Gain", 5.0, false))
	v, err := c.Props.GetPropertyValue("Gain")
	require.NoError(t, err)
	require.Equal(t, 5.0, v)

	err = c.Props.SetPropertyValue("Gain", 50.0, false)
	require.Error(t, err)
	require.True(t, daqerr.Is(err, daqerr.InvalidValue))

	err = c.Props.SetPropertyValue("Model", "X2", false)
	require.Error(t, err)
	require.True(t, daqerr.Is(err, daqerr.AccessDenied))

	require.NoError(t, c.Props.SetPropertyValue("Model", "X2", true))

	err = c.Props.SetPropertyValue("DoesNotExist", 1, false)
	require.Error(t, err)
	require.True(t, daqerr.Is(err, daqerr.NotFound))
}

func TestLockOwnershipAdditive(t *testing.T) {
	inst := NewInstance("root")
	c := NewComponent(KindDevice, "dev", inst.Bus, nil)
	require.NoError(t, inst.Root.AddChild(c))
	lock := NewLockState(c)

	require.NoError(t, lock.Lock("alice"))
	err := lock.Unlock("bob")
	require.Error(t, err)
	require.True(t, daqerr.Is(err, daqerr.AccessDenied))
	require.True(t, lock.IsLocked())

	require.NoError(t, lock.Lock("bob")) // nested lock, additive
	require.NoError(t, lock.Unlock("bob"))
	require.True(t, lock.IsLocked()) // alice's outer lock remains
	require.NoError(t, lock.Unlock("alice"))
	require.False(t, lock.IsLocked())
}

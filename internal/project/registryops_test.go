package project

import (
	"context"
	"strings"
	"testing"

	"github.com/packfactory/packfactory/internal/common"
	"github.com/packfactory/packfactory/internal/models"
	"github.com/stretchr/testify/require"
)

const captureHKLM = "isolation merged HKEY_LOCAL_MACHINE\n" +
	"isolation merged HKEY_LOCAL_MACHINE\\SOFTWARE\n" +
	"isolation full HKEY_LOCAL_MACHINE\\SOFTWARE\\Vendor\\App\n" +
	"  REG_SZ \"Name\" \"demo\"\n" +
	"  REG_SZ @ \"default\"\n"

// registryProject creates a project whose refresh ingested one HKLM
// capture file.
func registryProject(t *testing.T, e *testEnv) int64 {
	t.Helper()
	id := refreshedProject(t, e, map[string]string{"HKEY_LOCAL_MACHINE.txt": captureHKLM})

	p, err := e.store.GetProject(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p.RegistryID)
	return id
}

func TestGetRegistryKeyFromPath(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := registryProject(t, e)

	key, err := e.store.GetRegistryKeyFromPath(ctx, id, `HKEY_LOCAL_MACHINE\SOFTWARE\Vendor\App`)
	require.NoError(t, err)
	require.Equal(t, "full", key.Isolation)
	require.False(t, key.Intermediate)

	// Segment comparison is exact: a wrong-case query misses.
	_, err = e.store.GetRegistryKeyFromPath(ctx, id, `hkey_local_machine\software\vendor\app`)
	require.ErrorIs(t, err, common.ErrorNotFound)

	// Synthesized intermediate ancestors are reachable too.
	mid, err := e.store.GetRegistryKeyFromPath(ctx, id, `HKEY_LOCAL_MACHINE\SOFTWARE\Vendor`)
	require.NoError(t, err)
	require.True(t, mid.Intermediate)

	// A deeper key never answers for a prefix of itself.
	_, err = e.store.GetRegistryKeyFromPath(ctx, id, `HKEY_LOCAL_MACHINE\SOFTWARE\Vend`)
	require.ErrorIs(t, err, common.ErrorNotFound)
	_, err = e.store.GetRegistryKeyFromPath(ctx, id, `HKEY_LOCAL_MACHINE\SOFTWARE\Vendor\App\Missing`)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdateRegistryKey_PreservesUnchangedValueRows(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := registryProject(t, e)

	key, err := e.store.GetRegistryKeyFromPath(ctx, id, `HKEY_LOCAL_MACHINE\SOFTWARE\Vendor\App`)
	require.NoError(t, err)
	before, err := e.store.GetRegistryValues(ctx, key.ID)
	require.NoError(t, err)
	require.Len(t, before, 2)

	byName := func(vs []*models.RegistryValue, name string) *models.RegistryValue {
		for _, v := range vs {
			if (v.Name == nil && name == "") || (v.Name != nil && *v.Name == name) {
				return v
			}
		}
		return nil
	}

	named := "Name"
	extra := "Version"
	err = e.store.UpdateRegistryKey(ctx, id, key.ID, "full", []*models.RegistryValue{
		{Name: &named, Kind: "REG_SZ", Data: "demo"},         // unchanged
		{Name: nil, Kind: "REG_SZ", Data: "changed default"}, // updated
		{Name: &extra, Kind: "REG_SZ", Data: "1.0"},          // added
	})
	require.NoError(t, err)

	after, err := e.store.GetRegistryValues(ctx, key.ID)
	require.NoError(t, err)
	require.Len(t, after, 3)

	// Unchanged and updated values keep their row identity.
	require.Equal(t, byName(before, "Name").ID, byName(after, "Name").ID)
	require.Equal(t, byName(before, "").ID, byName(after, "").ID)
	require.Equal(t, "changed default", byName(after, "").Data)
	require.NotNil(t, byName(after, "Version"))

	require.Equal(t, models.StateDirty, e.state(t, id))
}

func TestUpdateRegistryKey_DropsStaleValues(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := registryProject(t, e)

	key, err := e.store.GetRegistryKeyFromPath(ctx, id, `HKEY_LOCAL_MACHINE\SOFTWARE\Vendor\App`)
	require.NoError(t, err)

	named := "Name"
	err = e.store.UpdateRegistryKey(ctx, id, key.ID, "full", []*models.RegistryValue{
		{Name: &named, Kind: "REG_SZ", Data: "demo"},
	})
	require.NoError(t, err)

	after, err := e.store.GetRegistryValues(ctx, key.ID)
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, "Name", *after[0].Name)
}

func TestCreateRegistryKey(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := registryProject(t, e)

	parent, err := e.store.GetRegistryKeyFromPath(ctx, id, `HKEY_LOCAL_MACHINE\SOFTWARE\Vendor\App`)
	require.NoError(t, err)

	keyID, err := e.store.CreateRegistryKey(ctx, id, parent.ID,
		`HKEY_LOCAL_MACHINE\SOFTWARE\Vendor\App\Settings`, "full")
	require.NoError(t, err)
	require.NotZero(t, keyID)

	got, err := e.store.GetRegistryKeyFromPath(ctx, id, `HKEY_LOCAL_MACHINE\SOFTWARE\Vendor\App\Settings`)
	require.NoError(t, err)
	require.Equal(t, keyID, got.ID)
	require.Equal(t, models.StateDirty, e.state(t, id))

	// A missing parent rejects the create.
	_, err = e.store.CreateRegistryKey(ctx, id, 999999, `HKEY_LOCAL_MACHINE\X`, "merged")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestWriteRegistry_ExportsWithoutDirtying(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := registryProject(t, e)

	require.NoError(t, e.store.WriteRegistry(ctx, id, false))
	require.Equal(t, models.StateAvailable, e.state(t, id))

	data := readProjectFile(t, e, id, "HKEY_LOCAL_MACHINE.txt")
	require.Contains(t, data, `isolation full HKEY_LOCAL_MACHINE\SOFTWARE\Vendor\App`)
	require.Contains(t, data, `REG_SZ "Name" "demo"`)
	require.Contains(t, data, `REG_SZ @ "default"`)

	// The capture survives a subsequent refresh unchanged.
	require.NoError(t, e.store.Refresh(ctx, id))
	key, err := e.store.GetRegistryKeyFromPath(ctx, id, `HKEY_LOCAL_MACHINE\SOFTWARE\Vendor\App`)
	require.NoError(t, err)
	vals, err := e.store.GetRegistryValues(ctx, key.ID)
	require.NoError(t, err)
	require.Len(t, vals, 2)
}

func TestWriteRegistry_NoRegistryIsNoop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	id, err := e.store.Create(ctx, e.dsID, 1)
	require.NoError(t, err)
	require.NoError(t, e.store.WriteRegistry(ctx, id, true))
}

func TestDeleteProjectData_Registry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := registryProject(t, e)

	p, err := e.store.GetProject(ctx, id)
	require.NoError(t, err)

	// The root row is off limits.
	err = e.store.DeleteProjectData(ctx, id, DataRegistryKey, *p.RegistryID)
	require.ErrorIs(t, err, ErrRestrictedPath)

	key, err := e.store.GetRegistryKeyFromPath(ctx, id, `HKEY_LOCAL_MACHINE\SOFTWARE\Vendor\App`)
	require.NoError(t, err)
	vals, err := e.store.GetRegistryValues(ctx, key.ID)
	require.NoError(t, err)

	require.NoError(t, e.store.DeleteProjectData(ctx, id, DataRegistryValue, vals[0].ID))
	left, err := e.store.GetRegistryValues(ctx, key.ID)
	require.NoError(t, err)
	require.Len(t, left, 1)

	require.NoError(t, e.store.DeleteProjectData(ctx, id, DataRegistryKey, key.ID))
	_, err = e.store.GetRegistryKeyFromPath(ctx, id, `HKEY_LOCAL_MACHINE\SOFTWARE\Vendor\App`)
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.Equal(t, models.StateDirty, e.state(t, id))

	err = e.store.DeleteProjectData(ctx, id, DataKind("bogus"), 1)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "unknown data kind"))
}

package database

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedPatchesAreOrdered(t *testing.T) {
	patches, err := EmbeddedPatches()
	require.NoError(t, err)
	require.NotEmpty(t, patches)
	for i := 1; i < len(patches); i++ {
		assert.Less(t, patches[i-1].Name, patches[i].Name)
	}
	assert.Equal(t, "0001_users_onboarding_columns", patches[0].Name)
	assert.Len(t, patches[0].Checksum, 64)
}

func TestLoadPatches(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_b.sql": {Data: []byte("SELECT 2;")},
		"0001_a.sql": {Data: []byte("SELECT 1;")},
		"README.md":  {Data: []byte("not a patch")},
	}
	patches, err := LoadPatches(fsys)
	require.NoError(t, err)
	require.Len(t, patches, 2)
	assert.Equal(t, "0001_a", patches[0].Name)
	assert.Equal(t, "SELECT 2;", patches[1].SQL)

	_, err = LoadPatches(fstest.MapFS{"0001_empty.sql": {Data: []byte("  \n")}})
	require.Error(t, err)
}

func TestChecksumIgnoresLineEndings(t *testing.T) {
	assert.Equal(t, Checksum("SELECT 1;\nSELECT 2;\n"), Checksum("SELECT 1;\r\nSELECT 2;\r\n"))
	assert.NotEqual(t, Checksum("SELECT 1;"), Checksum("SELECT 2;"))
}

func TestPlan(t *testing.T) {
	patches := []Patch{
		{Name: "0001_a", SQL: "SELECT 1;", Checksum: Checksum("SELECT 1;")},
		{Name: "0002_b", SQL: "SELECT 2;", Checksum: Checksum("SELECT 2;")},
		{Name: "0003_c", SQL: "SELECT 3;", Checksum: Checksum("SELECT 3;")},
	}
	appliedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("pending after applied", func(t *testing.T) {
		plan, err := Plan(patches, []AppliedPatch{{Name: "0001_a", Checksum: patches[0].Checksum, AppliedAt: appliedAt}})
		require.NoError(t, err)
		require.Len(t, plan, 3)
		assert.True(t, plan[0].Applied)
		assert.Equal(t, appliedAt, plan[0].AppliedAt)

		pending := Pending(plan)
		require.Len(t, pending, 2)
		assert.Equal(t, "0002_b", pending[0].Name)
		assert.Equal(t, "0003_c", pending[1].Name)
	})

	t.Run("nothing applied", func(t *testing.T) {
		plan, err := Plan(patches, nil)
		require.NoError(t, err)
		assert.Len(t, Pending(plan), 3)
	})

	t.Run("edited patch", func(t *testing.T) {
		_, err := Plan(patches, []AppliedPatch{
			{Name: "0001_a", Checksum: patches[0].Checksum},
			{Name: "0002_b", Checksum: Checksum("SELECT 22;")},
		})
		require.ErrorIs(t, err, ErrChecksumMismatch)
		assert.Contains(t, err.Error(), "0002_b")
	})

	t.Run("unknown applied rows are ignored", func(t *testing.T) {
		plan, err := Plan(patches[:1], []AppliedPatch{{Name: "0000_legacy", Checksum: "x"}})
		require.NoError(t, err)
		assert.Len(t, Pending(plan), 1)
	})
}

func TestQualifiedName(t *testing.T) {
	assert.Equal(t, `"users"`, QualifiedName("users"))
	assert.Equal(t, `"public"."job_applications"`, QualifiedName("public.job_applications"))
	assert.Equal(t, `"users; DROP TABLE users"`, QualifiedName("users; DROP TABLE users"))
	assert.Equal(t, `"we""ird"`, QualifiedName(`we"ird`))
}

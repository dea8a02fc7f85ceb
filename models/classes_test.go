package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNames(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "classes.names")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBuiltInClassSets(t *testing.T) {
	assert.Equal(t, 80, COCONames.Len())
	assert.Equal(t, 20, VOCNames.Len())

	name, ok := COCONames.Name(0)
	assert.True(t, ok)
	assert.Equal(t, "person", name)

	name, ok = COCONames.Name(79)
	assert.True(t, ok)
	assert.Equal(t, "toothbrush", name)

	name, ok = VOCNames.Name(14)
	assert.True(t, ok)
	assert.Equal(t, "person", name)
}

func TestClassSet_NameOutOfRange(t *testing.T) {
	for _, id := range []int{-1, 80, 1000} {
		name, ok := COCONames.Name(id)
		assert.False(t, ok, id)
		assert.Empty(t, name)
	}

	var nilSet *ClassSet
	_, ok := nilSet.Name(0)
	assert.False(t, ok)
	assert.Equal(t, 0, nilSet.Len())
}

func TestLoadClassNames(t *testing.T) {
	path := writeNames(t, "cat\n  dog \r\n\n\nbird\n")

	set, err := LoadClassNames(path)
	require.NoError(t, err)
	assert.Equal(t, ClassStyleCustom, set.Style)
	assert.Equal(t, []OutputClass{{0, "cat"}, {1, "dog"}, {2, "bird"}}, set.Classes)

	_, err = LoadClassNames(writeNames(t, "\n \n"))
	assert.Error(t, err)

	_, err = LoadClassNames(filepath.Join(t.TempDir(), "missing.names"))
	assert.Error(t, err)
}

func TestClassNamesFor(t *testing.T) {
	tests := []struct {
		name       string
		numClasses int
		path       string
		wantLen    int
		wantErr    bool
	}{
		{name: "coco", numClasses: 80, wantLen: 80},
		{name: "voc", numClasses: 20, wantLen: 20},
		{name: "unknown count without default file", numClasses: 7, wantLen: 0},
		{name: "file wins", numClasses: 3, path: writeNames(t, "a\nb\nc\n"), wantLen: 3},
		{name: "file with any count", numClasses: 0, path: writeNames(t, "a\nb\n"), wantLen: 2},
		{name: "file count mismatch", numClasses: 80, path: writeNames(t, "a\nb\n"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ClassNamesFor(tt.numClasses, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLen, set.Len())
		})
	}
}

func TestClassNamesFor_DefaultNamesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultNamesFile), []byte("car\nbus\ntruck\n"), 0o600))
	t.Chdir(dir)

	set, err := ClassNamesFor(3, "")
	require.NoError(t, err)
	name, ok := set.Name(2)
	assert.True(t, ok)
	assert.Equal(t, "truck", name)

	_, err = ClassNamesFor(5, "")
	assert.Error(t, err)

	set, err = ClassNamesFor(80, "")
	require.NoError(t, err)
	assert.Equal(t, COCONames, set)
}

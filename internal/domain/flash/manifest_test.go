package flash

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// sampleManifest is a realistic flasher_args.json with an unknown field
// and deliberately non-ascending entry order.
const sampleManifest = `{
    "write_flash_args": ["--flash_mode", "dio", "--flash_freq", "40m", "--flash_size", "2MB"],
    "flash_settings": {
        "flash_mode": "dio",
        "flash_freq": "40m",
        "flash_size": "2MB"
    },
    "flash_files": {
        "0x10000": "app.bin",
        "0x1000": "bootloader/bootloader.bin",
        "0x8000": "partition_table/partition-table.bin",
        "0xd000": "ota_data_initial.bin"
    },
    "bootloader": {
        "offset": "0x1000",
        "file": "bootloader/bootloader.bin",
        "encrypted": "false"
    },
    "app": {
        "offset": "0x10000",
        "file": "app.bin",
        "encrypted": "false"
    },
    "extra_esptool_args": {
        "after": "hard_reset",
        "before": "default_reset",
        "stub": true,
        "chip": "esp32"
    },
    "custom_tooling": {"vendor": "internal", "retries": 3}
}`

// writeSample drops the sample manifest into a fresh build directory.
func writeSample(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Filename), []byte(content), 0o644))

	return dir
}

// TestLoadPreservesEntryOrder ensures flashing order is the manifest order.
func TestLoadPreservesEntryOrder(t *testing.T) {
	t.Parallel()

	m, err := Load(writeSample(t, sampleManifest))
	require.NoError(t, err)

	require.Equal(t, []Entry{
		{Offset: "0x10000", File: "app.bin"},
		{Offset: "0x1000", File: "bootloader/bootloader.bin"},
		{Offset: "0x8000", File: "partition_table/partition-table.bin"},
		{Offset: "0xd000", File: "ota_data_initial.bin"},
	}, m.Entries)

	require.True(t, m.HasBootloader())
	require.Equal(t, "esp32", m.Esptool.Chip)
	require.True(t, bool(m.Sections["app"].Encrypted) == false)
}

// TestRoundTripFidelity ensures serialization keeps entry order and
// unrecognized fields byte-for-byte.
func TestRoundTripFidelity(t *testing.T) {
	t.Parallel()

	m, err := Load(writeSample(t, sampleManifest))
	require.NoError(t, err)

	serialized, err := json.Marshal(m)
	require.NoError(t, err)

	var reparsed Manifest
	require.NoError(t, json.Unmarshal(serialized, &reparsed))

	require.Equal(t, m.Entries, reparsed.Entries)
	require.Equal(t, m.Settings, reparsed.Settings)
	require.Equal(t, m.WriteFlashArgs, reparsed.WriteFlashArgs)
	require.JSONEq(t,
		`{"vendor": "internal", "retries": 3}`,
		string(reparsed.Extra["custom_tooling"]))
}

// TestLoadMissingFields ensures ManifestError names the missing field.
func TestLoadMissingFields(t *testing.T) {
	t.Parallel()

	var manifestErr *ManifestError

	// No flash_files at all.
	_, err := Load(writeSample(t, `{"flash_settings": {"flash_mode": "dio", "flash_freq": "40m", "flash_size": "2MB"}}`))
	require.ErrorAs(t, err, &manifestErr)
	require.Equal(t, "flash_files", manifestErr.Field)

	// No flash_settings.
	_, err = Load(writeSample(t, `{"flash_files": {"0x0": "app.bin"}}`))
	require.ErrorAs(t, err, &manifestErr)
	require.Equal(t, "flash_settings", manifestErr.Field)

	// Missing file entirely.
	_, err = Load(t.TempDir())
	require.ErrorAs(t, err, &manifestErr)
	require.Equal(t, "not found", manifestErr.Reason)
}

// TestIsBootloaderEntry matches by section file and offset.
func TestIsBootloaderEntry(t *testing.T) {
	t.Parallel()

	m, err := Load(writeSample(t, sampleManifest))
	require.NoError(t, err)

	require.True(t, m.IsBootloaderEntry(Entry{Offset: "0x1000", File: "bootloader/bootloader.bin"}))
	require.False(t, m.IsBootloaderEntry(Entry{Offset: "0x10000", File: "app.bin"}))
}

// TestSaveLoad ships the manifest through disk.
func TestSaveLoad(t *testing.T) {
	t.Parallel()

	m, err := Load(writeSample(t, sampleManifest))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, m.Save(filepath.Join(dir, Filename), 0o644))

	reloaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, m.Entries, reloaded.Entries)
	require.Equal(t, m.Settings, reloaded.Settings)
}

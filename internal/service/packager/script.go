package packager

import (
	"fmt"
	"strings"

	"github.com/oshokin/esp-release/internal/domain/flash"
)

const (
	// ScriptFilename is the generated flashing script inside the bundle.
	ScriptFilename = "flash.sh"

	// flashTool is the command the generated script invokes.
	flashTool = "esptool.py"
)

// GenerateScript renders the standalone flashing script for the
// rewritten manifest. The script needs no editing beyond choosing the
// serial device: posture warnings are confirmation-gated, commands are
// emitted one per manifest entry in manifest order, and the bootloader
// command carries the force flag under secure boot.
func GenerateScript(m *flash.Manifest, posture flash.Posture, releaseName, port string, baud int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "#!/bin/bash\n")
	fmt.Fprintf(&b, "# Flashing script for release %s.\n", releaseName)
	b.WriteString("set -e\n\n")
	fmt.Fprintf(&b, "PORT=\"${1:-%s}\"\n", port)
	fmt.Fprintf(&b, "BAUD=%d\n\n", baud)
	fmt.Fprintf(&b, "echo \"Flashing %s...\"\n", releaseName)

	if posture.SecureBoot {
		b.WriteString(`
echo "WARNING: Secure boot is enabled."
echo "  - Regions below the application are write-protected."
echo "  - The bootloader will be flashed using --force."
echo "  - Incorrect use of --force can permanently lock the device."
read -p "Continue flashing with secure boot enabled? (y/N): " CONFIRM_SECURE_BOOT
if [[ ! $CONFIRM_SECURE_BOOT =~ ^[Yy]$ ]]; then
    echo "Flashing aborted."
    exit 1
fi
`)
	}

	if posture.Encryption {
		b.WriteString(`
echo "WARNING: Flash encryption is enabled."
echo "  - Firmware is encrypted as it is written to flash."
echo "  - Future updates must use the same encryption key."
echo "  - Without correct key provisioning the device becomes unreadable and unrecoverable."
read -p "Continue flashing with encryption enabled? (y/N): " CONFIRM_ENCRYPT
if [[ ! $CONFIRM_ENCRYPT =~ ^[Yy]$ ]]; then
    echo "Flashing aborted."
    exit 1
fi
`)
	}

	b.WriteByte('\n')

	for _, entry := range m.Entries {
		bootloader := m.IsBootloaderEntry(entry)

		if bootloader && posture.SecureBoot {
			b.WriteString("echo \"Flashing bootloader with --force: secure boot write-protects its region, overwriting a signed bootloader requires an explicit override.\"\n")
		}

		b.WriteString(entryCommand(m, posture, entry, bootloader))
		b.WriteByte('\n')
	}

	return b.String()
}

// entryCommand renders one esptool write_flash invocation.
func entryCommand(m *flash.Manifest, posture flash.Posture, entry flash.Entry, bootloader bool) string {
	args := []string{
		flashTool,
		"-p", `"$PORT"`,
		"-b", `"$BAUD"`,
		"--before", valueOr(m.Esptool.Before, "default_reset"),
		"--after", valueOr(m.Esptool.After, "hard_reset"),
	}

	if !m.Esptool.Stub {
		args = append(args, "--no-stub")
	}

	args = append(args,
		"--chip", valueOr(m.Esptool.Chip, "esp32"),
		"write_flash",
		"--flash_mode", m.Settings.Mode,
		"--flash_freq", m.Settings.Freq,
		"--flash_size", m.Settings.Size,
	)

	if bootloader && posture.SecureBoot {
		args = append(args, flash.ForceFlag)
	}

	if !bootloader && posture.Encryption {
		args = append(args, flash.EncryptMarker)
	}

	args = append(args, entry.Offset, entry.File)

	return strings.Join(args, " ")
}

// valueOr falls back when the manifest leaves an option empty.
func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}

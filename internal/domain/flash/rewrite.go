package flash

import "strings"

// autoDetectSize is the flash size auto-detection convenience; it relies
// on reading the chip back and is unsafe once secure boot is in play.
const autoDetectSize = "detect"

// Rewrite mutates the manifest to reflect the classified posture.
//
// Secure boot injects the force flag for the bootloader offset (flashing
// a signed bootloader over an existing one requires an explicit operator
// override) and disables auto-detect conveniences. Encryption appends the
// encryption marker and marks every image except the bootloader as
// read-protected.
//
// Rewrite is idempotent: flags are added with set semantics, so running
// it over an already-rewritten manifest changes nothing.
func Rewrite(m *Manifest, posture Posture) {
	if posture.SecureBoot {
		m.addWriteFlashArg(ForceFlag, true)

		if section := m.BootloaderSection(); section != nil {
			section.Force = true
		}

		if strings.EqualFold(m.Settings.Size, autoDetectSize) {
			m.Settings.Size = "keep"
		}

		// The RAM stub reads flash contents back, which secure boot forbids.
		m.Esptool.Stub = false
	}

	if posture.Encryption {
		m.addWriteFlashArg(EncryptMarker, false)

		for name, section := range m.Sections {
			if name == SectionBootloader {
				continue
			}

			section.Encrypted = true
		}
	}

	if m.Security == nil {
		m.Security = new(Security)
	}

	m.Security.SecureBoot = posture.SecureBoot
	m.Security.Encryption = posture.Encryption
}

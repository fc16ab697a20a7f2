package flash

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// Filename is the flashing metadata file emitted by the build tool.
	Filename = "flasher_args.json"

	// SectionBootloader is the manifest section describing the bootloader.
	SectionBootloader = "bootloader"

	// ForceFlag is the esptool override acknowledging writes into
	// regions protected by secure boot.
	ForceFlag = "--force"

	// EncryptMarker is the esptool flag acknowledging flash encryption.
	EncryptMarker = "--encrypt"
)

// Entry maps one flash offset to the binary written there.
// Entry order in the manifest is the flashing order and is preserved
// exactly through parse and serialize.
type Entry struct {
	// Offset is the flash offset, e.g. "0x1000".
	Offset string
	// File is the binary path relative to the build directory.
	File string
}

// Settings are the global flash parameters passed to the flashing tool.
type Settings struct {
	// Mode is the flash mode, e.g. "dio".
	Mode string `json:"flash_mode"`
	// Freq is the flash frequency, e.g. "40m".
	Freq string `json:"flash_freq"`
	// Size is the flash size, e.g. "2MB" or "detect".
	Size string `json:"flash_size"`
}

// EsptoolArgs carry connection-level options for the flashing tool.
type EsptoolArgs struct {
	// Before is the reset behavior before flashing.
	Before string `json:"before"`
	// After is the reset behavior after flashing.
	After string `json:"after"`
	// Chip is the target chip, e.g. "esp32".
	Chip string `json:"chip"`
	// Stub selects the RAM flasher stub; disabled under secure boot.
	Stub bool `json:"stub"`
}

// Section describes one named image (bootloader, app, partition table...)
// with its security attributes.
type Section struct {
	// Offset is the flash offset of the image.
	Offset string `json:"offset"`
	// File is the binary path relative to the build directory.
	File string `json:"file"`
	// Encrypted marks the image as written encrypted and read-protected.
	Encrypted FlexBool `json:"encrypted,omitempty"`
	// Force marks the image as requiring an explicit operator override
	// to overwrite, used for the bootloader under secure boot.
	Force FlexBool `json:"force,omitempty"`
}

// Security records the classified posture inside the rewritten manifest
// so bundle consumers need no out-of-band knowledge.
type Security struct {
	// SecureBoot reports whether the bundle is signed for secure boot.
	SecureBoot bool `json:"secure_boot"`
	// Encryption reports whether images are flashed encrypted.
	Encryption bool `json:"encryption"`
	// DigestFile names the public key digest artifact in the bundle,
	// present only for secure boot bundles.
	DigestFile string `json:"digest_file,omitempty"`
}

// FlexBool decodes both JSON booleans and the "true"/"false" strings the
// build tool emits, and always serializes back as a string.
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true", `"true"`:
		*b = true
	case "false", `"false"`, "null":
		*b = false
	default:
		return fmt.Errorf("invalid boolean value %s", data)
	}

	return nil
}

// MarshalJSON implements json.Marshaler.
func (b FlexBool) MarshalJSON() ([]byte, error) {
	if b {
		return []byte(`"true"`), nil
	}

	return []byte(`"false"`), nil
}

// Manifest is a typed view of the build tool's flashing metadata.
// Known fields are explicit; unrecognized top-level fields are kept
// verbatim in Extra so serialization loses nothing.
type Manifest struct {
	// WriteFlashArgs is the extra-arguments list passed to write_flash.
	// It may carry security markers such as --encrypt and --force.
	WriteFlashArgs []string
	// Settings are the global flash parameters.
	Settings Settings
	// Entries map offsets to binaries, in flashing order.
	Entries []Entry
	// Esptool carries connection-level flashing options.
	Esptool EsptoolArgs
	// Sections are the named images keyed by section name.
	Sections map[string]*Section
	// Security is the recorded posture, set by the rewriter.
	Security *Security
	// Extra preserves unrecognized fields for round-trip fidelity.
	Extra map[string]json.RawMessage

	// path is where the manifest was loaded from, used in error messages.
	path string
	// sectionOrder and extraOrder preserve input key order on output.
	sectionOrder []string
	extraOrder   []string
}

// Load reads and validates flashing metadata from the build directory.
func Load(buildDir string) (*Manifest, error) {
	path := filepath.Join(buildDir, Filename)

	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &ManifestError{Path: path, Reason: "not found"}
	} else if err != nil {
		return nil, &ManifestError{Path: path, Reason: err.Error()}
	}

	m := new(Manifest)
	if err = json.Unmarshal(contents, m); err != nil {
		return nil, &ManifestError{Path: path, Reason: err.Error()}
	}

	m.path = path

	if err = m.validate(); err != nil {
		return nil, err
	}

	return m, nil
}

// validate checks for the fields every downstream stage depends on.
func (m *Manifest) validate() error {
	if len(m.Entries) == 0 {
		return &ManifestError{Path: m.path, Field: "flash_files", Reason: "missing or empty"}
	}

	if m.Settings == (Settings{}) {
		return &ManifestError{Path: m.path, Field: "flash_settings", Reason: "missing"}
	}

	return nil
}

// UnmarshalJSON decodes the manifest while preserving the order of flash
// entries and unrecognized fields.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	m.Sections = make(map[string]*Section)
	m.Extra = make(map[string]json.RawMessage)

	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("manifest is not a JSON object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}

		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err = dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}

		if err = m.decodeField(key, raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}

	return nil
}

// decodeField routes one top-level field to its typed home.
func (m *Manifest) decodeField(key string, raw json.RawMessage) error {
	switch key {
	case "write_flash_args":
		return json.Unmarshal(raw, &m.WriteFlashArgs)
	case "flash_settings":
		return json.Unmarshal(raw, &m.Settings)
	case "flash_files":
		entries, err := decodeFlashFiles(raw)
		if err != nil {
			return err
		}

		m.Entries = entries

		return nil
	case "extra_esptool_args":
		return json.Unmarshal(raw, &m.Esptool)
	case "security":
		m.Security = new(Security)
		return json.Unmarshal(raw, m.Security)
	default:
		// Objects shaped like an image record are named sections;
		// anything else is preserved opaquely.
		var section Section
		if err := json.Unmarshal(raw, &section); err == nil && section.Offset != "" && section.File != "" {
			m.Sections[key] = &section
			m.sectionOrder = append(m.sectionOrder, key)

			return nil
		}

		m.Extra[key] = raw
		m.extraOrder = append(m.extraOrder, key)

		return nil
	}
}

// decodeFlashFiles walks the flash_files object tokens so that entry
// order survives the trip through Go, which maps would not guarantee.
func decodeFlashFiles(raw json.RawMessage) ([]Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("flash_files is not a JSON object")
	}

	var entries []Entry

	for dec.More() {
		offsetTok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		offset, _ := offsetTok.(string)

		var file string
		if err = dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("offset %q: %w", offset, err)
		}

		entries = append(entries, Entry{Offset: offset, File: file})
	}

	return entries, nil
}

// MarshalJSON serializes the manifest with known fields first, named
// sections and unrecognized fields in their original order, and flash
// entries in flashing order.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	writeField := func(key string, value any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}

		keyJSON, err := json.Marshal(key)
		if err != nil {
			return err
		}

		valueJSON, err := json.Marshal(value)
		if err != nil {
			return err
		}

		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(valueJSON)

		return nil
	}

	writeFlashArgs := m.WriteFlashArgs
	if writeFlashArgs == nil {
		writeFlashArgs = []string{}
	}

	if err := writeField("write_flash_args", writeFlashArgs); err != nil {
		return nil, err
	}

	if err := writeField("flash_settings", m.Settings); err != nil {
		return nil, err
	}

	files := make(json.RawMessage, 0, 64)
	files = append(files, '{')

	for i, entry := range m.Entries {
		if i > 0 {
			files = append(files, ',')
		}

		offsetJSON, err := json.Marshal(entry.Offset)
		if err != nil {
			return nil, err
		}

		fileJSON, err := json.Marshal(entry.File)
		if err != nil {
			return nil, err
		}

		files = append(files, offsetJSON...)
		files = append(files, ':')
		files = append(files, fileJSON...)
	}

	files = append(files, '}')

	if err := writeField("flash_files", files); err != nil {
		return nil, err
	}

	for _, name := range m.sectionOrder {
		if section, ok := m.Sections[name]; ok {
			if err := writeField(name, section); err != nil {
				return nil, err
			}
		}
	}

	if err := writeField("extra_esptool_args", m.Esptool); err != nil {
		return nil, err
	}

	if m.Security != nil {
		if err := writeField("security", m.Security); err != nil {
			return nil, err
		}
	}

	for _, key := range m.extraOrder {
		if raw, ok := m.Extra[key]; ok {
			if err := writeField(key, raw); err != nil {
				return nil, err
			}
		}
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// Save writes the manifest as indented JSON, matching the build tool's style.
func (m *Manifest) Save(path string, mode os.FileMode) error {
	contents, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), contents, mode); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}

// BootloaderSection returns the bootloader section, or nil when absent.
func (m *Manifest) BootloaderSection() *Section {
	return m.Sections[SectionBootloader]
}

// HasBootloader reports whether the manifest carries a bootloader image,
// either as a named section or as a flash entry.
func (m *Manifest) HasBootloader() bool {
	if m.BootloaderSection() != nil {
		return true
	}

	for _, entry := range m.Entries {
		if m.IsBootloaderEntry(entry) {
			return true
		}
	}

	return false
}

// IsBootloaderEntry reports whether the entry writes the bootloader image.
func (m *Manifest) IsBootloaderEntry(entry Entry) bool {
	if section := m.BootloaderSection(); section != nil {
		return entry.File == section.File || entry.Offset == section.Offset
	}

	return strings.HasSuffix(entry.File, "bootloader.bin")
}

// HasWriteFlashArg reports whether the extra-arguments list carries the flag.
func (m *Manifest) HasWriteFlashArg(flag string) bool {
	for _, arg := range m.WriteFlashArgs {
		if arg == flag {
			return true
		}
	}

	return false
}

// addWriteFlashArg adds the flag with set semantics: a flag already
// present is never duplicated. Prepending keeps override flags ahead of
// positional-looking arguments, as the flashing tool expects.
func (m *Manifest) addWriteFlashArg(flag string, prepend bool) {
	if m.HasWriteFlashArg(flag) {
		return
	}

	if prepend {
		m.WriteFlashArgs = append([]string{flag}, m.WriteFlashArgs...)
		return
	}

	m.WriteFlashArgs = append(m.WriteFlashArgs, flag)
}

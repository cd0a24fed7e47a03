package domain

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindEmbedded  Kind = "embedded-iframe"
	KindExternal  Kind = "external-redirect"
	KindRecording Kind = "local-recording"
)

func (k Kind) Validate() error {
	switch k {
	case KindEmbedded, KindExternal, KindRecording:
		return nil
	default:
		return fmt.Errorf("unknown task kind %q", k)
	}
}

type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
)

// TaskDescriptor is static task configuration. It is never mutated at runtime.
type TaskDescriptor struct {
	Code              string        `yaml:"code"`
	Name              string        `yaml:"name"`
	Kind              Kind          `yaml:"kind"`
	EstimatedDuration time.Duration `yaml:"estimated_duration"`
	Skippable         bool          `yaml:"skippable"`
	Skilled           bool          `yaml:"skilled"`
	// ExemptionTag names a participant declaration that removes the task from
	// the required set, e.g. "non_signer".
	ExemptionTag string `yaml:"exemption_tag,omitempty"`
}

type Catalog struct {
	Tasks    map[string]TaskDescriptor `yaml:"tasks"`
	Devices  map[DeviceClass][]string  `yaml:"devices"`
	Terminal string                    `yaml:"terminal"`
}

func (c Catalog) Validate() error {
	if c.Terminal == "" {
		return fmt.Errorf("catalog terminal task is required")
	}
	if _, ok := c.Tasks[c.Terminal]; !ok {
		return fmt.Errorf("catalog terminal task %q is not defined", c.Terminal)
	}
	for code, task := range c.Tasks {
		if task.Code != code {
			return fmt.Errorf("catalog task key %q does not match code %q", code, task.Code)
		}
		if err := task.Kind.Validate(); err != nil {
			return fmt.Errorf("task %s: %w", code, err)
		}
	}
	if len(c.Devices[DeviceDesktop]) == 0 {
		return fmt.Errorf("catalog must define a desktop task list")
	}
	for device, codes := range c.Devices {
		seen := map[string]bool{}
		for _, code := range codes {
			if _, ok := c.Tasks[code]; !ok {
				return fmt.Errorf("device %s references unknown task %q", device, code)
			}
			if seen[code] {
				return fmt.Errorf("device %s lists task %q twice", device, code)
			}
			seen[code] = true
		}
	}
	return nil
}

// TasksFor returns the task list for device, falling back to desktop.
func (c Catalog) TasksFor(device DeviceClass) []string {
	codes, ok := c.Devices[device]
	if !ok {
		codes = c.Devices[DeviceDesktop]
	}
	out := make([]string, len(codes))
	copy(out, codes)
	return out
}

func (c Catalog) Task(code string) (TaskDescriptor, bool) {
	task, ok := c.Tasks[code]
	return task, ok
}

// DefaultCatalog is the built-in task set used when no catalog file is configured.
func DefaultCatalog() Catalog {
	tasks := []TaskDescriptor{
		{Code: "RC", Name: "Reading Comprehension", Kind: KindEmbedded, EstimatedDuration: 10 * time.Minute},
		{Code: "MRT", Name: "Mental Rotation", Kind: KindExternal, EstimatedDuration: 12 * time.Minute, Skilled: true},
		{Code: "ASLCT", Name: "ASL Comprehension", Kind: KindExternal, EstimatedDuration: 15 * time.Minute, Skippable: true, Skilled: true, ExemptionTag: "non_signer"},
		{Code: "SN", Name: "Spatial Navigation", Kind: KindEmbedded, EstimatedDuration: 10 * time.Minute, Skilled: true},
		{Code: "ID", Name: "Image Description", Kind: KindRecording, EstimatedDuration: 8 * time.Minute, Skippable: true},
		{Code: "DEMO", Name: "Demographics", Kind: KindEmbedded, EstimatedDuration: 5 * time.Minute},
	}
	byCode := make(map[string]TaskDescriptor, len(tasks))
	for _, task := range tasks {
		byCode[task.Code] = task
	}
	return Catalog{
		Tasks: byCode,
		Devices: map[DeviceClass][]string{
			DeviceDesktop: {"RC", "MRT", "ASLCT", "SN", "ID", "DEMO"},
			DeviceMobile:  {"RC", "ASLCT", "ID", "DEMO"},
		},
		Terminal: "DEMO",
	}
}

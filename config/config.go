// Package config loads the YAML bootstrap file that describes a System
// and its Printers, the way airprint-bridge loads its yaml.v3 config file
// ahead of building its CUPS-backed printer set — except here the
// config directly constructs ippsrv objects rather than overriding
// flag-parsed defaults, since a System can host an arbitrary number of
// Printers rather than one fixed bridge target.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/OpenPrinting/goipp"
	"gopkg.in/yaml.v3"

	"github.com/OpenPrinting/ippd/ippsrv"
)

// File is the on-disk shape of the bootstrap config.
type File struct {
	Server struct {
		BaseURI      string   `yaml:"base_uri"`
		Listen       string   `yaml:"listen"`
		SpoolDir     string   `yaml:"spool_dir"`
		FileURIRoots []string `yaml:"file_uri_roots"`
		TransformBin string   `yaml:"transform_bin_dir"`
		LogLevel     string   `yaml:"log_level"`
		Debug        bool     `yaml:"debug"`
		DumpDir      string   `yaml:"dump_dir"`
	} `yaml:"server"`

	Admin struct {
		Group string              `yaml:"group"`
		Users map[string][]string `yaml:"users"`
	} `yaml:"admin"`

	Advertise struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"advertise"`

	Printers []PrinterConfig `yaml:"printers"`
}

// PrinterConfig describes one Printer to create at startup.
type PrinterConfig struct {
	Name                  string   `yaml:"name"`
	Kind                  string   `yaml:"kind"` // "print", "print3d", "faxout"
	MakeAndModel          string   `yaml:"make_and_model"`
	DocumentFormats       []string `yaml:"document_formats"`
	ProxyGroup            string   `yaml:"proxy_group"`
	MaxDevices            int      `yaml:"max_devices"`
	TransformCmd          string   `yaml:"transform_cmd"`
	DeviceURI             string   `yaml:"device_uri"`
	OutputType            string   `yaml:"output_type"`
}

// Load parses path into a File.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if f.Server.BaseURI == "" {
		return nil, fmt.Errorf("config: server.base_uri is required")
	}
	if f.Server.Listen == "" {
		f.Server.Listen = ":631"
	}
	return &f, nil
}

// BuildSystem constructs a System and its configured Printers.
func BuildSystem(f *File) (*ippsrv.System, error) {
	authz := ippsrv.NewMemAuthorizer(f.Admin.Users)
	sys := ippsrv.NewSystem(authz)
	sys.AdminGroup = f.Admin.Group
	if sys.AdminGroup == "" {
		sys.AdminGroup = "admins"
	}

	for _, pc := range f.Printers {
		if pc.Name == "" {
			return nil, fmt.Errorf("config: printer entry missing name")
		}
		p := ippsrv.NewPrinter(sys, pc.Name, pc.Kind)
		p.ProxyGroup = pc.ProxyGroup
		p.MaxDevices = pc.MaxDevices
		p.TransformCmd = pc.TransformCmd
		p.DeviceURI = pc.DeviceURI
		p.OutputType = pc.OutputType
		p.Attrs = printerAttrs(pc)
		sys.CreatePrinter(p)
	}
	return sys, nil
}

func printerAttrs(pc PrinterConfig) goipp.Attributes {
	var attrs goipp.Attributes
	add := func(name string, tag goipp.Tag, values ...goipp.Value) {
		if len(values) == 0 {
			return
		}
		attr := goipp.MakeAttribute(name, tag, values[0])
		for _, v := range values[1:] {
			attr.Values.Add(tag, v)
		}
		attrs.Add(attr)
	}
	if pc.MakeAndModel != "" {
		add("printer-make-and-model", goipp.TagText, goipp.String(pc.MakeAndModel))
	}
	if len(pc.DocumentFormats) > 0 {
		values := make([]goipp.Value, len(pc.DocumentFormats))
		for i, f := range pc.DocumentFormats {
			values[i] = goipp.String(f)
		}
		add("document-format-supported", goipp.TagMimeType, values...)
	}
	return attrs
}

// ParseDuration is a small yaml-friendly wrapper used by callers that store
// durations (e.g. reaper tick interval) as plain strings in the config.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

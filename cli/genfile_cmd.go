package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mateuskih/Trabalho-1-UDP/cli/output"
	"github.com/mateuskih/Trabalho-1-UDP/internal"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/storage"
)

type genManifest struct {
	Version int            `json:"version" yaml:"version"`
	Files   []genFileEntry `json:"files" yaml:"files"`
}

type genFileEntry struct {
	Name   string `json:"name" yaml:"name"`
	SizeMB int    `json:"size_mb" yaml:"size_mb"`
}

func GenFileCommand() *cobra.Command {
	var manifestPath string
	var dir string
	cmd := &cobra.Command{
		Use:          "genfile [<name> <size-mb>]",
		Short:        "Generate random test files to serve",
		Long:         "Generate files of alphanumeric noise, either one from positional arguments or a batch from a YAML/JSON manifest.",
		Args:         cobra.MaximumNArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := output.NewPrinter()

			var entries []genFileEntry
			switch {
			case manifestPath != "" && len(args) > 0:
				return fmt.Errorf("either pass <name> <size-mb> or --manifest, not both")
			case manifestPath != "":
				m, err := loadGenManifest(manifestPath)
				if err != nil {
					return err
				}
				entries = m.Files
			case len(args) == 2:
				sizeMB, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("size %q is not a number of megabytes: %w", args[1], err)
				}
				entries = []genFileEntry{{Name: args[0], SizeMB: sizeMB}}
			default:
				return fmt.Errorf("need <name> <size-mb> or --manifest")
			}

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			for _, e := range entries {
				path := filepath.Join(dir, e.Name)
				if err := storage.Generate(path, e.SizeMB); err != nil {
					return fmt.Errorf("generate %s: %w", e.Name, err)
				}
				printer.Success("file generated", map[string]any{
					"path": path,
					"size": internal.HumanizeSize(uint64(e.SizeMB) << 20),
				})
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "YAML or JSON manifest describing files to generate")
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to place generated files in")
	return cmd
}

func loadGenManifest(path string) (*genManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	format := strings.ToLower(filepath.Ext(path))
	if format != ".yaml" && format != ".yml" && format != ".json" {
		format = ".yaml"
	}
	m, err := decodeGenManifest(data, format)
	if err != nil {
		return nil, err
	}
	if m.Version == 0 {
		m.Version = 1
	}
	if m.Version != 1 {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeGenManifest(data []byte, format string) (*genManifest, error) {
	var m genManifest
	switch format {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown manifest format %q", format)
	}
	return &m, nil
}

func (m *genManifest) validate() error {
	if len(m.Files) == 0 {
		return fmt.Errorf("manifest lists no files")
	}
	for i, e := range m.Files {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return fmt.Errorf("manifest file %d has no name", i)
		}
		if name != filepath.Base(name) {
			return fmt.Errorf("manifest file %q must be a bare name", e.Name)
		}
		if e.SizeMB < 0 {
			return fmt.Errorf("manifest file %q has negative size", e.Name)
		}
	}
	return nil
}

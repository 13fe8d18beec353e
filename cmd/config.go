package cmd

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jobshop-sim/jobshop-sim/sim/workload"
)

// FileConfig mirrors the CLI flags in a YAML file. Flags set explicitly on
// the command line take precedence over file values.
type FileConfig struct {
	Seed         int64   `yaml:"seed"`
	Horizon      float64 `yaml:"horizon"`
	LogLevel     string  `yaml:"log_level"`
	Machines     int     `yaml:"machines"`
	MachineTypes int     `yaml:"machine_types"`
	Policy       string  `yaml:"policy"`
	QTableDir    string  `yaml:"qtable_dir"`
	MetricsPort  int     `yaml:"metrics_port"`
	BusURL       string  `yaml:"bus_url"`
	BusSubject   string  `yaml:"bus_subject"`

	Failures struct {
		Enabled bool    `yaml:"enabled"`
		Preset  string  `yaml:"preset"`
		MTBF    float64 `yaml:"mtbf"`
		MTTR    float64 `yaml:"mttr"`
	} `yaml:"failures"`

	Workload workload.Config `yaml:"workload"`

	Taillard struct {
		File     string `yaml:"file"`
		Instance string `yaml:"instance"`
	} `yaml:"taillard"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*FileConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := yaml.Unmarshal(buf, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

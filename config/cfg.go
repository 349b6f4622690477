package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	// BookConfig holds static metadata put into every produced book unless
	// overwritten from command line.
	BookConfig struct {
		Rights         string `yaml:"rights"`
		Publisher      string `yaml:"publisher"`
		Identifier     string `yaml:"identifier"`
		Subject        string `yaml:"subject"`
		Description    string `yaml:"description"`
		Language       string `yaml:"language" validate:"required,bcp47_language_tag"`
		StylesheetPath string `yaml:"stylesheet_path" sanitize:"assure_file_access"`
	}

	FetchConfig struct {
		Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
		UserAgent  string        `yaml:"user_agent" validate:"required"`
		RetryCount int           `yaml:"retry_count" validate:"gte=0,max=10"`
		RetryWait  time.Duration `yaml:"retry_wait" validate:"gte=0"`
		MaxSize    int64         `yaml:"max_size" validate:"gt=0"`
		Cookie     SecretString  `yaml:"cookie,omitempty"`
	}

	CoverConfig struct {
		MaxWidth  int `yaml:"max_width" validate:"gte=0"`
		MaxHeight int `yaml:"max_height" validate:"gte=0"`
	}

	DocumentConfig struct {
		OutputNameTemplate    string      `yaml:"output_name_template"`
		FileNameTransliterate bool        `yaml:"file_name_transliterate"`
		FixZip                bool        `yaml:"fix_zip"`
		Verify                bool        `yaml:"verify"`
		StripElements         []string    `yaml:"strip_elements" validate:"dive,required"`
		Cover                 CoverConfig `yaml:"cover"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Book      BookConfig     `yaml:"book"`
		Fetch     FetchConfig    `yaml:"fetch"`
		Document  DocumentConfig `yaml:"document"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

// NOTE: must match yaml field name above
const OutputNameTemplateFieldName TemplateFieldName = "output_name_template"

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(OutputNameTemplateFieldName)),
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

// Dump returns yaml representation of the configuration, secrets are masked.
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}

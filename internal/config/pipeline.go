// Package config defines the pipeline configuration document and its loading
// and validation.
package config

// Pipeline is the full run configuration.
type Pipeline struct {
	Job     string  `mapstructure:"job" json:"job" yaml:"job" validate:"required"`
	Source  Source  `mapstructure:"source" json:"source" yaml:"source"`
	Clean   Clean   `mapstructure:"clean" json:"clean" yaml:"clean"`
	Storage Storage `mapstructure:"storage" json:"storage" yaml:"storage"`
	Runtime Runtime `mapstructure:"runtime" json:"runtime" yaml:"runtime"`
	Metrics Metrics `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	Log     Log     `mapstructure:"log" json:"log" yaml:"log"`
}

// Source selects where raw incidents come from.
type Source struct {
	// Kind: "csv" | "json" | "mongo"
	Kind    string       `mapstructure:"kind" json:"kind" yaml:"kind" validate:"required,oneof=csv json mongo"`
	File    *FileSource  `mapstructure:"file" json:"file,omitempty" yaml:"file,omitempty"`
	Mongo   *MongoSource `mapstructure:"mongo" json:"mongo,omitempty" yaml:"mongo,omitempty"`
	Options Options      `mapstructure:"options" json:"options,omitempty" yaml:"options,omitempty"`
}

type FileSource struct {
	Path string `mapstructure:"path" json:"path" yaml:"path" validate:"required"`
	// Encoding: "utf-8" (default) | "latin1"
	Encoding string `mapstructure:"encoding" json:"encoding" yaml:"encoding" validate:"omitempty,oneof=utf-8 utf8 latin1 latin-1 iso-8859-1"`
}

type MongoSource struct {
	URI        string `mapstructure:"uri" json:"uri" yaml:"uri" validate:"required"`
	Database   string `mapstructure:"database" json:"database" yaml:"database" validate:"required"`
	Collection string `mapstructure:"collection" json:"collection" yaml:"collection" validate:"required"`
}

// Clean toggles the pre-modeling cleanup steps.
type Clean struct {
	// FillMeasures replaces missing numeric measures with zero.
	FillMeasures bool `mapstructure:"fill_measures" json:"fill_measures" yaml:"fill_measures"`
	// DropUnknownDates removes incidents whose month or day is 0.
	DropUnknownDates bool `mapstructure:"drop_unknown_dates" json:"drop_unknown_dates" yaml:"drop_unknown_dates"`
	// ExplodeWeapons emits one record per listed weapon (slots 1..4).
	ExplodeWeapons bool `mapstructure:"explode_weapons" json:"explode_weapons" yaml:"explode_weapons"`
}

type Storage struct {
	// Kind: "sqlite" | "postgres" | "mssql"
	Kind string `mapstructure:"kind" json:"kind" yaml:"kind" validate:"required,oneof=sqlite postgres mssql"`
	DSN  string `mapstructure:"dsn" json:"dsn" yaml:"dsn" validate:"required"`
}

// Runtime controls load behavior.
type Runtime struct {
	// BatchSize bounds rows per INSERT statement. Backends cap it further by
	// their bind-parameter limits.
	BatchSize int `mapstructure:"batch_size" json:"batch_size" yaml:"batch_size" validate:"gte=0"`
	// AtomicReload wraps reset+load in one transaction when the backend
	// supports it.
	AtomicReload bool `mapstructure:"atomic_reload" json:"atomic_reload" yaml:"atomic_reload"`
}

type Metrics struct {
	// Backend: "none" | "pushgateway" | "datadog"
	Backend        string   `mapstructure:"backend" json:"backend" yaml:"backend" validate:"omitempty,oneof=none pushgateway datadog"`
	PushgatewayURL string   `mapstructure:"pushgateway_url" json:"pushgateway_url" yaml:"pushgateway_url" validate:"omitempty,url"`
	Tags           []string `mapstructure:"tags" json:"tags,omitempty" yaml:"tags,omitempty"`
}

type Log struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" json:"format" yaml:"format" validate:"omitempty,oneof=json console"`
}

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/utilitywarehouse/git-replicate/destination"
	"github.com/utilitywarehouse/git-replicate/repopool"
)

// ConfigError is returned when configuration can't be loaded or is invalid.
// it is fatal and reported before any work starts.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration %s err:%s", msg, e.Err)
	}
	return "invalid configuration " + msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// parseConfigFile decodes config file based on its extension, toml is
// assumed for unknown extensions. unknown keys are rejected.
func parseConfigFile(path string) (*repopool.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "config", Message: "unable to read file", Err: err}
	}

	conf := &repopool.Config{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// empty document is a valid empty config
		if err := dec.Decode(conf); err != nil && !errors.Is(err, io.EOF) {
			return nil, &ConfigError{Field: "config", Message: "unable to parse yaml", Err: err}
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(conf); err != nil {
			return nil, &ConfigError{Field: "config", Message: "unable to parse json", Err: err}
		}
	default:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(conf); err != nil {
			var strictErr *toml.StrictMissingError
			if errors.As(err, &strictErr) {
				return nil, &ConfigError{Field: "config", Message: "unexpected keys\n" + strictErr.String()}
			}
			return nil, &ConfigError{Field: "config", Message: "unable to parse toml", Err: err}
		}
	}

	return conf, nil
}

// loadConfig reads the config file and overlays values of the flags.
// default config file is optional, it's an error only if path was given.
func loadConfig(c *cli.Command) (*repopool.Config, error) {
	path := c.String("config")

	conf, err := parseConfigFile(path)
	if err != nil {
		if !c.IsSet("config") && errors.Is(err, fs.ErrNotExist) {
			logger.Debug("config file not found, using flags only", "path", path)
			conf = &repopool.Config{}
		} else {
			return nil, err
		}
	}

	applyFlags(c, conf)

	if conf.OutputDir != "" && !filepath.IsAbs(conf.OutputDir) {
		abs, err := filepath.Abs(conf.OutputDir)
		if err != nil {
			return nil, &ConfigError{Field: "output_dir", Message: "unable to get absolute path", Err: err}
		}
		conf.OutputDir = abs
	}

	if err := conf.ValidateAndApplyDefaults(); err != nil {
		return nil, &ConfigError{Message: "values", Err: err}
	}

	return conf, nil
}

// applyFlags overrides config values with the flags which are set
func applyFlags(c *cli.Command, conf *repopool.Config) {
	if c.IsSet("account") {
		// accounts given on command line can be users or organizations
		// which only matters to the lister
		conf.Users = c.StringSlice("account")
		conf.Organizations = nil
	}
	if c.IsSet("repository") {
		conf.Repositories = c.StringSlice("repository")
	}
	if c.IsSet("base-dir") {
		conf.OutputDir = c.String("base-dir")
	}
	if c.IsSet("source-url") {
		conf.Source.URL = c.String("source-url")
	}
	if c.IsSet("source-api-url") {
		conf.Source.APIURL = c.String("source-api-url")
	}
	if c.IsSet("source-token") {
		conf.Source.Token = c.String("source-token")
	}

	destFlags := map[string]func(d *destination.Config, v string){
		"dest-url":      func(d *destination.Config, v string) { d.URL = v },
		"dest-token":    func(d *destination.Config, v string) { d.Token = v },
		"dest-username": func(d *destination.Config, v string) { d.Username = v },
		"dest-password": func(d *destination.Config, v string) { d.Password = v },
	}
	for name, set := range destFlags {
		if !c.IsSet(name) {
			continue
		}
		if conf.Destination == nil {
			conf.Destination = &destination.Config{}
		}
		set(conf.Destination, c.String(name))
	}
	if c.IsSet("push-lfs") {
		if conf.Destination == nil {
			conf.Destination = &destination.Config{}
		}
		conf.Destination.PushLFS = c.Bool("push-lfs")
	}
}

package main

import (
	"io/ioutil"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"hsicnn/hsi"
	"hsicnn/pipeline"
)

// runConfig is the YAML run file. Seed is a pointer so an absent seed can fall back
// to the clock.
type runConfig struct {
	pipeline.Config `yaml:",inline"`
	Seed            *int64 `yaml:"seed"`
}

func parseConfig(buf []byte) (runConfig, error) {
	cfg := runConfig{Config: pipeline.DefaultConfig()}
	if err := yaml.UnmarshalStrict(buf, &cfg); err != nil {
		return runConfig{}, errors.Wrapf(hsi.ErrConfiguration, "bad run configuration: %v", err)
	}
	return cfg, nil
}

func readConfig(path string) (runConfig, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return runConfig{}, err
	}
	return parseConfig(buf)
}

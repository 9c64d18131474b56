package main

import (
	"encoding/json"
	"errors"
	"flag"
	"io/ioutil"
)

// Config is dialogd's JSON bootstrap file, adapted from kdbd's own
// Config: DatabaseName/DataPath are kept (the server does not read
// them), the index/bucket tuning knobs that don't apply to dialog's
// engine are dropped, and the session/RPC knobs spec.md §6 names are
// added.
type Config struct {
	// DatabaseName is kept from kdbd; nothing in dialogd reads it.
	DatabaseName string `json:"databaseName"`

	// DataPath is kept from kdbd; table creation does not use it, so it
	// gives durable tables no default directory.
	DataPath string `json:"dataPath"`

	// DDPAddress is the host:port to listen for DDP traffic on.
	DDPAddress string `json:"ddpAddress"`

	// MaxConcurrency bounds how many RPC method bodies run at once.
	MaxConcurrency int `json:"maxConcurrency"`

	// IteratorBatchSize is how many entries get_more returns per call.
	IteratorBatchSize int `json:"iteratorBatchSize"`

	// TriggerLatenessMs is how far behind wall-clock the trigger worker
	// stays before evaluating a bucket.
	TriggerLatenessMs int64 `json:"triggerLatenessMs"`
}

var errMissingConfigFilePath = errors.New("config file path is missing")

const (
	defaultMaxConcurrency    = 64
	defaultIteratorBatchSize = 1024
	defaultTriggerLatenessMs = 1000
)

func readConfigFile() (*Config, error) {
	file := flag.String("config", "", "config JSON file")
	flag.Parse()

	if *file == "" {
		return nil, errMissingConfigFilePath
	}

	data, err := ioutil.ReadFile(*file)
	if err != nil {
		return nil, err
	}

	config := &Config{
		MaxConcurrency:    defaultMaxConcurrency,
		IteratorBatchSize: defaultIteratorBatchSize,
		TriggerLatenessMs: defaultTriggerLatenessMs,
	}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

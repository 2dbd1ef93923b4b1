package main

import (
	"fmt"
	"time"
)

type Config struct {
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	HistoryLimit         int           `env:"HISTORY_LIMIT,default=200"`
	IdleThreshold        time.Duration `env:"IDLE_THRESHOLD,required=true"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL,required=true"`
	HomeRegion           string        `env:"HOME_REGION"`
	BlobDir              string        `env:"BLOB_DIR,required=true"`
	BlobBaseURL          string        `env:"BLOB_BASE_URL,required=true"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf("CHARACTER_REPLACEMENT must be a single character, got %q", str)
	}
	return r[0], nil
}
